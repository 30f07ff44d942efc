// Package params abstracts the parameter store that holds runtime
// configuration such as the active translation provider and provider API
// keys.
package params

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/vango-go/callbridge/pkg/bridge/fault"
)

// Source reads named parameters.
type Source interface {
	Get(ctx context.Context, name string, decrypt bool) (string, error)
}

// SSMAPI is the slice of the SSM client the source uses.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// SSM reads parameters from AWS Systems Manager Parameter Store.
type SSM struct {
	client SSMAPI
}

func NewSSM(client SSMAPI) *SSM {
	return &SSM{client: client}
}

func (s *SSM) Get(ctx context.Context, name string, decrypt bool) (string, error) {
	resp, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(decrypt),
	})
	if err != nil {
		return "", fault.Wrap(fault.KindUnavailable, "params.get", err)
	}
	if resp.Parameter == nil || resp.Parameter.Value == nil {
		return "", fault.New(fault.KindNotFound, "params.get", fmt.Sprintf("parameter %s has no value", name))
	}
	return *resp.Parameter.Value, nil
}

// Set writes a parameter, overwriting any existing value.
func (s *SSM) Set(ctx context.Context, name, value string) error {
	if _, err := s.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(name),
		Value:     aws.String(value),
		Overwrite: aws.Bool(true),
	}); err != nil {
		return fault.Wrap(fault.KindUnavailable, "params.set", err)
	}
	return nil
}

// Static is a fixed in-memory Source for tests and local development.
type Static map[string]string

func (s Static) Get(ctx context.Context, name string, decrypt bool) (string, error) {
	v, ok := s[name]
	if !ok {
		return "", fault.New(fault.KindNotFound, "params.get", fmt.Sprintf("no parameter %s", name))
	}
	return v, nil
}
