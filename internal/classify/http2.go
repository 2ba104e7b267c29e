package classify

import (
	"bytes"

	"firestige.xyz/conntag/internal/core"
)

// http2Preface is the client connection preface of prior-knowledge HTTP/2.
var http2Preface = []byte("PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n")

type http2Detector struct{}

func newHTTP2Detector(options map[string]any) (Detector, error) {
	if err := decodeOptions(options, &struct{}{}); err != nil {
		return nil, err
	}
	return http2Detector{}, nil
}

func (http2Detector) Name() string { return "http2" }

func (http2Detector) Detect(p *Packet) (Result, bool) {
	if !bytes.HasPrefix(p.Payload, http2Preface) {
		return Result{}, false
	}
	return Result{Static: core.HTTP2, Name: "http2", Detail: "h2c"}, true
}
