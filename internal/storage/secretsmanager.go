package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/peteski22/adsbridge/internal/twitterads"
)

// SecretsManagerAPI defines the Secrets Manager operations used by the credential store.
type SecretsManagerAPI interface {
	// GetSecretValue retrieves a secret value.
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// secretCredentials is the JSON layout of the credentials secret.
type secretCredentials struct {
	AccessToken       string `json:"access_token"`
	AccessTokenSecret string `json:"access_token_secret"`
	ConsumerKey       string `json:"consumer_key"`
	ConsumerSecret    string `json:"consumer_secret"`
}

// CredentialStore reads the API credentials from AWS Secrets Manager.
type CredentialStore struct {
	// client is the Secrets Manager API client.
	client SecretsManagerAPI

	// secretARN is the ARN of the secret holding the credentials JSON.
	secretARN string
}

// Credentials returns the OAuth credentials held in the secret.
func (c *CredentialStore) Credentials(ctx context.Context) (twitterads.Credentials, error) {
	output, err := c.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(c.secretARN),
	})
	if err != nil {
		return twitterads.Credentials{}, fmt.Errorf("getting secret from Secrets Manager: %w", err)
	}

	if output.SecretString == nil {
		return twitterads.Credentials{}, errors.New("secret has no string value")
	}

	var sc secretCredentials
	if err := json.Unmarshal([]byte(*output.SecretString), &sc); err != nil {
		return twitterads.Credentials{}, fmt.Errorf("decoding credentials secret: %w", err)
	}

	return twitterads.Credentials{
		AccessToken:       sc.AccessToken,
		AccessTokenSecret: sc.AccessTokenSecret,
		ConsumerKey:       sc.ConsumerKey,
		ConsumerSecret:    sc.ConsumerSecret,
	}, nil
}

// NewCredentialStore creates a new Secrets Manager-backed credential store.
func NewCredentialStore(client SecretsManagerAPI, secretARN string) (*CredentialStore, error) {
	if client == nil {
		return nil, errors.New("secrets manager client is required")
	}
	if secretARN == "" {
		return nil, errors.New("secret ARN is required")
	}

	return &CredentialStore{
		client:    client,
		secretARN: secretARN,
	}, nil
}
