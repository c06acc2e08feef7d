package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"
)

func lambdaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Run as an AWS Lambda function behind API Gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLambda(cmd.Context())
		},
	}
}

// runLambda serves invocations until the runtime stops the process. Each
// invocation waits for its events so no work runs while the sandbox is
// frozen.
func runLambda(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := build(ctx, true)
	if err != nil {
		return err
	}
	lambda.Start(a.handler.Handle)
	return nil
}
