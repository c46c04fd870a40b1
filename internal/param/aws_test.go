package param

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSSM func(*ssm.GetParameterInput) (*ssm.GetParameterOutput, error)

func (m mockSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	return m(in)
}

func TestFetch(t *testing.T) {
	f := &ParameterStoreFetcher{client: mockSSM(func(in *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
		assert.Equal(t, "/s3/secret", aws.ToString(in.Name))
		assert.True(t, aws.ToBool(in.WithDecryption))
		return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String("shh")}}, nil
	})}
	v, err := f.Fetch(context.Background(), "/s3/secret")
	require.NoError(t, err)
	assert.Equal(t, "shh", v)
}

func TestFetchErrors(t *testing.T) {
	boom := errors.New("boom")
	f := &ParameterStoreFetcher{client: mockSSM(func(*ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
		return nil, boom
	})}
	_, err := f.Fetch(context.Background(), "/p")
	assert.ErrorIs(t, err, boom)

	f = &ParameterStoreFetcher{client: mockSSM(func(*ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
		return &ssm.GetParameterOutput{}, nil
	})}
	_, err = f.Fetch(context.Background(), "/p")
	assert.ErrorContains(t, err, "empty response")
}

type staticFetcher map[string]string

func (s staticFetcher) Fetch(_ context.Context, path string) (string, error) {
	v, ok := s[path]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func TestResolve(t *testing.T) {
	f := staticFetcher{"/id": "from-ssm"}
	ctx := context.Background()

	v, err := Resolve(ctx, f, "literal", "/id")
	require.NoError(t, err)
	assert.Equal(t, "literal", v)

	v, err = Resolve(ctx, f, "", "/id")
	require.NoError(t, err)
	assert.Equal(t, "from-ssm", v)

	v, err = Resolve(ctx, f, "", "")
	require.NoError(t, err)
	assert.Empty(t, v)

	_, err = Resolve(ctx, f, "", "/missing")
	assert.Error(t, err)
}
