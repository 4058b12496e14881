package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	logger "github.com/sirupsen/logrus"

	"agentorchestrator/cmd/serve"
	"agentorchestrator/src/app"
)

var APP_NAME = os.Getenv("APP_NAME")

func main() {
	_ = godotenv.Load()
	app.SetupLogger()
	defer handlePanic()

	s := &serve.Serve{}
	if err := s.Start(); err != nil {
		logger.WithError(err).Fatal("Server stopped with error")
	}
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
		//nolint
		time.Sleep(time.Second * 5)
	}
}
