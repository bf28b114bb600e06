package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Client reads the upstream API key from a single named AWS SSM Parameter
// Store parameter. It satisfies usecase.KeySource, so deployments that keep
// the credential in Parameter Store instead of the environment can swap it in
// at composition time.
type Client struct {
	api  ssmAPI
	name string
}

// New creates a Client bound to the given parameter name.
func New(api ssmAPI, name string) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("paramstore: parameter name must not be empty")
	}
	return &Client{api: api, name: name}, nil
}

// APIKey fetches the decrypted parameter value. It is called per request;
// SSM's own throughput limits are generous enough that no cache is kept, and
// rotating the secret takes effect immediately.
func (c *Client) APIKey(ctx context.Context) (string, error) {
	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &c.name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", c.name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}
