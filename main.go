package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/dmorgan81/multipartupload/internal/handler"
	"github.com/dmorgan81/multipartupload/internal/inject"
	"github.com/dmorgan81/multipartupload/internal/log"
	"github.com/samber/do"
)

func main() {
	ctx := log.NewContext(context.Background(), log.New(os.Stderr, log.ParseLevel(os.Getenv("LOG_LEVEL"))))
	injector := inject.Setup(ctx)

	var handle any
	switch os.Getenv("MODE") {
	case "sweep":
		handle = do.MustInvoke[*handler.SweepHandler](injector).Handle
	default:
		handle = do.MustInvoke[*handler.Handler](injector).Handle
	}

	lambda.StartWithOptions(handle, lambda.WithContext(ctx), lambda.WithEnableSIGTERM(func() {
		_ = injector.Shutdown()
	}))
}
