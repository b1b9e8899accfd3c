package config

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSSMClient struct {
	values  map[string]string
	err     error
	batches [][]string
}

func (m *mockSSMClient) GetParameters(_ context.Context, in *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	m.batches = append(m.batches, in.Names)
	if m.err != nil {
		return nil, m.err
	}
	out := &ssm.GetParametersOutput{}
	for _, name := range in.Names {
		if v, ok := m.values[name]; ok {
			out.Parameters = append(out.Parameters, ssmtypes.Parameter{Name: aws.String(name), Value: aws.String(v)})
		} else {
			out.InvalidParameters = append(out.InvalidParameters, name)
		}
	}
	return out, nil
}

func TestSSMProvider_Batches(t *testing.T) {
	values := make(map[string]string)
	keys := make([]string, 0, 23)
	for i := 0; i < 23; i++ {
		k := fmt.Sprintf("/dev/snipper/p%02d", i)
		keys = append(keys, k)
		values[k] = fmt.Sprintf("v%02d", i)
	}
	client := &mockSSMClient{values: values}
	p := newSSMProviderWithClient("us-east-1", client)

	got, err := p.GetParametersBatch(context.Background(), keys)
	require.NoError(t, err)

	assert.Len(t, got, 23)
	require.Len(t, client.batches, 3)
	assert.Len(t, client.batches[0], 10)
	assert.Len(t, client.batches[2], 3)
}

func TestSSMProvider_OmitsInvalid(t *testing.T) {
	client := &mockSSMClient{values: map[string]string{"/a": "1"}}
	p := newSSMProviderWithClient("us-east-1", client)

	got, err := p.GetParametersBatch(context.Background(), []string{"/a", "/b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"/a": "1"}, got)
}

func TestSSMProvider_Error(t *testing.T) {
	boom := errors.New("AccessDenied")
	p := newSSMProviderWithClient("us-east-1", &mockSSMClient{err: boom})

	_, err := p.GetParametersBatch(context.Background(), []string{"/a"})
	assert.ErrorIs(t, err, boom)
}

func TestSSMProvider_CancelledContext(t *testing.T) {
	client := &mockSSMClient{}
	p := newSSMProviderWithClient("us-east-1", client)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.GetParametersBatch(ctx, []string{"/a"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, client.batches)
}

func TestSSMProvider_EmptyKeys(t *testing.T) {
	got, err := NewSSMProvider("us-east-1").GetParametersBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
