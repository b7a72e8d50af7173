package glue

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsglue "github.com/aws/aws-sdk-go-v2/service/glue"
)

// NewClient builds a Glue client for the given region using the default
// credential chain.
func NewClient(ctx context.Context, region string) (*awsglue.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return awsglue.NewFromConfig(awsCfg), nil
}
