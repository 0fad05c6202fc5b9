package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleDoc() Document {
	return Document{
		Stack: "dev",
		Outputs: map[string]any{
			"minecraft_vm_ip": "3.120.0.10",
			"readme":          "# Minecraft server\n\nConnect on port 25565.\n",
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"yml", FormatYAML, false},
		{"yaml", FormatYAML, false},
		{"toml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleDoc(), FormatText))

	assert.Equal(t, "minecraft_vm_ip: 3.120.0.10\n"+
		"readme:\n"+
		"    # Minecraft server\n"+
		"    \n"+
		"    Connect on port 25565.\n", buf.String())
}

func TestRender_TextUnknownAndEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, Document{Outputs: map[string]any{"minecraft_vm_ip": nil}}, FormatText))
	assert.Equal(t, "minecraft_vm_ip: <unknown>\n", buf.String())

	buf.Reset()
	require.NoError(t, Render(&buf, Document{}, FormatText))
	assert.Equal(t, "No outputs defined.\n", buf.String())
}

func TestRender_JSON(t *testing.T) {
	data, err := Bytes(sampleDoc(), FormatJSON)
	require.NoError(t, err)

	var got Document
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "dev", got.Stack)
	assert.Equal(t, "3.120.0.10", got.Outputs["minecraft_vm_ip"])
}

func TestRender_YAML(t *testing.T) {
	data, err := Bytes(sampleDoc(), FormatYAML)
	require.NoError(t, err)
	assert.Contains(t, string(data), "stack: dev\n")

	var got Document
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, sampleDoc().Outputs["readme"], got.Outputs["readme"])
}

func TestRender_UnknownFormat(t *testing.T) {
	err := Render(io.Discard, sampleDoc(), Format("xml"))
	assert.Error(t, err)
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "outputs.json")
	sink := &FileSink{Path: path}

	require.NoError(t, sink.Write(context.Background(), []byte(`{"stack":"dev"}`)))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"stack":"dev"}`, string(data))
	assert.Equal(t, path, sink.String())
}

type mockS3API struct {
	putObjectFunc func(*s3.PutObjectInput) (*s3.PutObjectOutput, error)
}

func (m *mockS3API) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return m.putObjectFunc(in)
}

func TestS3Sink(t *testing.T) {
	var got *s3.PutObjectInput
	var body []byte
	api := &mockS3API{putObjectFunc: func(in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		got = in
		var err error
		body, err = io.ReadAll(in.Body)
		return &s3.PutObjectOutput{}, err
	}}

	sink := NewS3SinkWithClient(api, "game-outputs", "")
	sink.Encrypt = true
	require.NoError(t, sink.Write(context.Background(), []byte("payload")))

	assert.Equal(t, "game-outputs", aws.ToString(got.Bucket))
	assert.Equal(t, "craftstack/outputs.json", aws.ToString(got.Key))
	assert.Equal(t, s3types.ServerSideEncryptionAes256, got.ServerSideEncryption)
	assert.Equal(t, "payload", string(body))
	assert.Equal(t, "s3://game-outputs/craftstack/outputs.json", sink.String())
}

func TestS3Sink_Error(t *testing.T) {
	api := &mockS3API{putObjectFunc: func(*s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return nil, errors.New("access denied")
	}}

	err := NewS3SinkWithClient(api, "b", "k.yaml").Write(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://b/k.yaml")
	assert.Contains(t, err.Error(), "access denied")
}

func TestNewS3Sink_RequiresBucket(t *testing.T) {
	_, err := NewS3Sink(context.Background(), "", "", "", "")
	assert.EqualError(t, err, "s3 sink requires a bucket")
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "application/json", ContentTypeFor(FormatJSON))
	assert.Equal(t, "application/yaml", ContentTypeFor(FormatYAML))
	assert.Equal(t, "text/plain; charset=utf-8", ContentTypeFor(FormatText))
}
