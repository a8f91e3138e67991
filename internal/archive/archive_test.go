package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/ccmbridge/internal/config"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func writeClusterDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	logs := filepath.Join(dir, "ccm_test", "node1", "logs")
	require.NoError(t, os.MkdirAll(logs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(logs, "system.log"), []byte("ERROR boom\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ccm_test", "cluster.conf"), []byte("name: ccm_test\n"), 0o644))
	return dir
}

func readTarGz(t *testing.T, data []byte) map[string]string {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	entries := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries[hdr.Name] = string(content)
	}
	return entries
}

func TestNew_DisabledWithoutBucket(t *testing.T) {
	assert.Nil(t, New(zerolog.Nop(), config.ArchiveConfig{}))
	assert.NotNil(t, New(zerolog.Nop(), config.ArchiveConfig{Bucket: "logs", Region: "us-east-1", Endpoint: "http://localhost:9000"}))
}

func TestPack(t *testing.T) {
	dir := writeClusterDir(t)

	var buf bytes.Buffer
	require.NoError(t, Pack(&buf, dir))

	entries := readTarGz(t, buf.Bytes())
	assert.Equal(t, "ERROR boom\n", entries["ccm_test/node1/logs/system.log"])
	assert.Equal(t, "name: ccm_test\n", entries["ccm_test/cluster.conf"])
	assert.Contains(t, entries, "ccm_test/node1/")
}

func TestArchive_Uploads(t *testing.T) {
	dir := writeClusterDir(t)
	client := &fakeS3{}
	a := NewWithClient(zerolog.Nop(), client, "ci-logs", "runs/42/")

	url, err := a.Archive(context.Background(), "ccm_test", dir)
	require.NoError(t, err)
	assert.Equal(t, "s3://ci-logs/runs/42/ccm_test.tar.gz", url)

	require.NotNil(t, client.input)
	assert.Equal(t, "ci-logs", aws.ToString(client.input.Bucket))
	assert.Equal(t, "runs/42/ccm_test.tar.gz", aws.ToString(client.input.Key))
	assert.Equal(t, int64(len(client.body)), aws.ToInt64(client.input.ContentLength))
	assert.Contains(t, readTarGz(t, client.body), "ccm_test/node1/logs/system.log")
}

func TestArchive_UploadError(t *testing.T) {
	dir := writeClusterDir(t)
	a := NewWithClient(zerolog.Nop(), &fakeS3{err: errors.New("access denied")}, "ci-logs", "")

	_, err := a.Archive(context.Background(), "ccm_test", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ccm_test.tar.gz")
	assert.Contains(t, err.Error(), "access denied")
}

func TestArchive_MissingDir(t *testing.T) {
	a := NewWithClient(zerolog.Nop(), &fakeS3{}, "ci-logs", "")
	_, err := a.Archive(context.Background(), "ccm_test", filepath.Join(t.TempDir(), "gone"))
	require.Error(t, err)
}
