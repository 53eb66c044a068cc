package s3blob

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitLocation(t *testing.T) {
	tests := []struct {
		location   string
		def        string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{location: "s3://feeds/live/current.json", wantBucket: "feeds", wantKey: "live/current.json"},
		{location: "pregame.json", def: "dflt", wantBucket: "dflt", wantKey: "pregame.json"},
		{location: "/pregame.json", def: "dflt", wantBucket: "dflt", wantKey: "pregame.json"},
		{location: "pregame.json", wantErr: true},
		{location: "s3://only-bucket", wantErr: true},
		{location: "s3:///key", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			bucket, key, err := splitLocation(tt.location, tt.def)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.False(t, isNotFound(errors.New("boom")))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "http://storage.example.com", normaliseEndpoint("storage.example.com", false))
	assert.Equal(t, "https://storage.example.com", normaliseEndpoint("storage.example.com", true))
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("http://localhost:9000", true))
}
