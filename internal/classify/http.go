package classify

import (
	"bytes"
	"strings"

	"firestige.xyz/conntag/internal/core"
)

var defaultHTTPMethods = []string{
	"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS", "PATCH", "CONNECT", "TRACE",
}

type httpOptions struct {
	Methods []string `mapstructure:"methods"`
}

// httpDetector recognises HTTP/1.x request lines and status lines.
type httpDetector struct {
	methods [][]byte
}

func newHTTPDetector(options map[string]any) (Detector, error) {
	var opts httpOptions
	if err := decodeOptions(options, &opts); err != nil {
		return nil, err
	}
	if len(opts.Methods) == 0 {
		opts.Methods = defaultHTTPMethods
	}
	d := &httpDetector{}
	for _, m := range opts.Methods {
		d.methods = append(d.methods, []byte(strings.ToUpper(m)+" "))
	}
	return d, nil
}

func (d *httpDetector) Name() string { return "http" }

// Detect tags requests with their method and responses with their status code.
func (d *httpDetector) Detect(p *Packet) (Result, bool) {
	data := p.Payload
	if bytes.HasPrefix(data, []byte("HTTP/1.")) {
		// "HTTP/1.1 200 OK"
		if len(data) >= 12 && data[8] == ' ' {
			return Result{Static: core.HTTP, Name: "http", Detail: string(data[9:12])}, true
		}
		return Result{Static: core.HTTP, Name: "http"}, true
	}
	for _, m := range d.methods {
		if !bytes.HasPrefix(data, m) {
			continue
		}
		line := data
		if i := bytes.IndexByte(line, '\n'); i >= 0 {
			line = line[:i]
		}
		if !bytes.Contains(line, []byte(" HTTP/1.")) {
			return Result{}, false
		}
		return Result{Static: core.HTTP, Name: "http", Detail: string(m[:len(m)-1])}, true
	}
	return Result{}, false
}
