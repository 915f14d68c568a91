package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/peteski22/adsbridge/internal/state"
)

// SSMAPI defines the SSM operations used by the state store.
type SSMAPI interface {
	// GetParameter retrieves a parameter from SSM.
	GetParameter(
		ctx context.Context,
		params *ssm.GetParameterInput,
		optFns ...func(*ssm.Options),
	) (*ssm.GetParameterOutput, error)

	// PutParameter stores a parameter in SSM.
	PutParameter(
		ctx context.Context,
		params *ssm.PutParameterInput,
		optFns ...func(*ssm.Options),
	) (*ssm.PutParameterOutput, error)
}

// SSMStateStore keeps the state document in a single SSM parameter.
type SSMStateStore struct {
	// client is the SSM API client.
	client SSMAPI

	// parameterName is the SSM parameter holding the state JSON.
	parameterName string
}

// Load returns the stored state, or an empty state if the parameter does not exist yet.
func (s *SSMStateStore) Load(ctx context.Context) (*state.State, error) {
	output, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name: aws.String(s.parameterName),
	})
	if err != nil {
		// Parameter not found is not an error - first run.
		var notFoundErr *types.ParameterNotFound
		if errors.As(err, &notFoundErr) {
			return state.New(), nil
		}
		return nil, fmt.Errorf("getting parameter from SSM: %w", err)
	}

	if output.Parameter == nil || output.Parameter.Value == nil {
		return state.New(), nil
	}

	st, err := state.Parse([]byte(*output.Parameter.Value))
	if err != nil {
		return nil, fmt.Errorf("parsing state from parameter: %w", err)
	}

	return st, nil
}

// Save overwrites the parameter with the state document.
func (s *SSMStateStore) Save(ctx context.Context, st *state.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	// Intelligent tiering moves to the advanced tier once the document outgrows 4KB.
	_, err = s.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(s.parameterName),
		Overwrite: aws.Bool(true),
		Tier:      types.ParameterTierIntelligentTiering,
		Type:      types.ParameterTypeString,
		Value:     aws.String(string(data)),
	})
	if err != nil {
		return fmt.Errorf("putting parameter to SSM: %w", err)
	}

	return nil
}

// NewSSMStateStore creates a new SSM-backed state store.
func NewSSMStateStore(client SSMAPI, parameterName string) (*SSMStateStore, error) {
	if client == nil {
		return nil, errors.New("ssm client is required")
	}
	if parameterName == "" {
		return nil, errors.New("parameter name is required")
	}

	return &SSMStateStore{
		client:        client,
		parameterName: parameterName,
	}, nil
}
