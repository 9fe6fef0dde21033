package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSinkRewritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reports", "report.txt")

	sink, err := NewFileSink(path)
	require.NoError(t, err)

	require.NoError(t, sink.Write(context.Background(), Report{Text: "first"}))
	require.NoError(t, sink.Write(context.Background(), Report{Text: "second"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
	assert.NoError(t, sink.Close())
}

func TestFileSinkEmptyPath(t *testing.T) {
	_, err := NewFileSink("")
	assert.Error(t, err)
}

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf)
	require.NoError(t, sink.Write(context.Background(), Report{Text: "hello"}))
	assert.Equal(t, "hello\n", buf.String())
	assert.Equal(t, "console", sink.Name())
}

type fakeKafkaWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafkaWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSink(t *testing.T) {
	w := &fakeKafkaWriter{}
	sink := &KafkaSink{writer: w, topic: "sniffer.reports"}

	r := Report{Header: Header{Device: "eth0", State: "running"}, Traffic: sampleSnapshot(), Protocols: Shares(sampleSnapshot())}
	require.NoError(t, sink.Write(context.Background(), r))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("eth0"), w.msgs[0].Key)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &doc))
	assert.Equal(t, "eth0", doc["device"])
	assert.Equal(t, "running", doc["state"])
	assert.Contains(t, doc, "traffic")
	assert.NotContains(t, doc, "Text")

	w.err = errors.New("broker down")
	assert.ErrorContains(t, sink.Write(context.Background(), r), "sniffer.reports")

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestNewKafkaSinkValidation(t *testing.T) {
	_, err := NewKafkaSink(KafkaConfig{Topic: "t"})
	assert.Error(t, err)
	_, err = NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
	_, err = NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t", Compression: "brotli"})
	assert.Error(t, err)

	sink, err := NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t", Compression: "none"})
	require.NoError(t, err)
	assert.Equal(t, "kafka", sink.Name())
	assert.NoError(t, sink.Close())
}

type fakePublisher struct {
	subject string
	data    []byte
	drained bool
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subject = subject
	f.data = data
	return nil
}

func (f *fakePublisher) Drain() error {
	f.drained = true
	return nil
}

func TestNATSSink(t *testing.T) {
	p := &fakePublisher{}
	sink := &NATSSink{conn: p, subject: "sniffer.report"}

	require.NoError(t, sink.Write(context.Background(), Report{Header: Header{Device: "wlan0"}}))
	assert.Equal(t, "sniffer.report", p.subject)
	assert.Contains(t, string(p.data), `"device":"wlan0"`)

	require.NoError(t, sink.Close())
	assert.True(t, p.drained)
}

func TestNewNATSSinkRequiresSubject(t *testing.T) {
	_, err := NewNATSSink(NATSConfig{URL: "nats://127.0.0.1:1"})
	assert.Error(t, err)
}
