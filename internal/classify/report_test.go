package classify

import (
	"bytes"
	"testing"

	"github.com/google/gopacket/layers"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func classifiedEngine(t *testing.T) *testEngine {
	t.Helper()
	e := newTestEngine(t, 16, Options{Normalize: true})
	dec, err := NewDecoder(layers.LinkTypeEthernet, 0)
	require.NoError(t, err)
	e.process(t, dec,
		tcpFrame(t, "10.0.0.1", 40000, "10.0.0.2", 80, "GET / HTTP/1.1\r\n\r\n"),
		tcpFrame(t, "10.0.0.1", 40001, "10.0.0.2", 443, string(tlsHello(0x01, 0x0304))),
		tcpFrame(t, "10.0.0.1", 40002, "10.0.0.2", 22, "SSH-2.0-OpenSSH_9.6\r\n"),
	)
	return e
}

func TestReport(t *testing.T) {
	r := classifiedEngine(t).Report()

	require.Len(t, r.Connections, 3)
	assert.Equal(t, uint64(3), r.Summary.Packets)
	assert.Equal(t, 2, r.Summary.Tagged)

	http := r.Connections[0]
	assert.Equal(t, "tcp 10.0.0.1:40000 -> 10.0.0.2:80", http.Conn)
	assert.Equal(t, []string{"http", "GET"}, http.Tags)
	assert.Equal(t, []string{"http"}, http.StaticTags)
	assert.Equal(t, "0x0000000000000001", http.History)
	assert.Equal(t, uint64(1), http.SentPackets)
	assert.False(t, http.FirstSeen.IsZero())

	tls := r.Connections[1]
	assert.Equal(t, []string{"tls", "tls1.3"}, tls.Tags)
	assert.Equal(t, []string{"tls"}, tls.StaticTags)

	ssh := r.Connections[2]
	assert.Empty(t, ssh.Tags)
	assert.Empty(t, ssh.StaticTags)
	assert.Equal(t, "0x0000000000000000", ssh.History)

	// Static names come first in the vocabulary, so "http" keeps its static code.
	require.Len(t, http.TagIDs, 2)
	assert.Equal(t, "http", r.Vocabulary[http.TagIDs[0]])
	assert.Equal(t, "GET", r.Vocabulary[http.TagIDs[1]])
}

func TestReportEncodeJSON(t *testing.T) {
	r := classifiedEngine(t).Report()

	var buf bytes.Buffer
	require.NoError(t, r.Encode(&buf, FormatJSON))
	assert.Contains(t, buf.String(), `"conn": "tcp 10.0.0.1:40000 -> 10.0.0.2:80"`)

	var decoded Report
	require.NoError(t, jsoniter.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, r.Summary, decoded.Summary)
	assert.Equal(t, r.Vocabulary, decoded.Vocabulary)
	require.Len(t, decoded.Connections, len(r.Connections))
	assert.Equal(t, r.Connections[0].Tags, decoded.Connections[0].Tags)
}

func TestReportEncodeYAML(t *testing.T) {
	r := classifiedEngine(t).Report()

	var buf bytes.Buffer
	require.NoError(t, r.Encode(&buf, FormatYAML))
	assert.Contains(t, buf.String(), "10.0.0.1:40000 -> 10.0.0.2:80")

	var decoded Report
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, r.Summary, decoded.Summary)
	assert.Equal(t, r.Connections[1].Tags, decoded.Connections[1].Tags)
}

func TestReportEncodeUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := classifiedEngine(t).Report().Encode(&buf, "xml")
	assert.Error(t, err)
}
