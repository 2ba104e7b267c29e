package classify

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/ghettovoice/gosip/sip"
	"github.com/ghettovoice/gosip/sip/parser"

	"firestige.xyz/conntag/internal/core"
	"firestige.xyz/conntag/internal/log"
)

var sipMethods = [][]byte{
	[]byte("INVITE"),
	[]byte("ACK"),
	[]byte("BYE"),
	[]byte("CANCEL"),
	[]byte("REGISTER"),
	[]byte("OPTIONS"),
	[]byte("PRACK"),
	[]byte("SUBSCRIBE"),
	[]byte("NOTIFY"),
	[]byte("PUBLISH"),
	[]byte("INFO"),
	[]byte("REFER"),
	[]byte("MESSAGE"),
	[]byte("UPDATE"),
}

var sipVersion = []byte("SIP/2.0")

type sipOptions struct {
	// Parse the full message; otherwise only the start line is inspected.
	Parse bool `mapstructure:"parse"`
}

// sipDetector recognises SIP requests and responses by their start line.
// With parsing enabled, messages the SIP parser rejects are not tagged.
type sipDetector struct {
	parse bool
}

func newSIPDetector(options map[string]any) (Detector, error) {
	opts := sipOptions{Parse: true}
	if err := decodeOptions(options, &opts); err != nil {
		return nil, err
	}
	return &sipDetector{parse: opts.Parse}, nil
}

func (d *sipDetector) Name() string { return "sip" }

func (d *sipDetector) Detect(p *Packet) (Result, bool) {
	data := p.Payload
	detail, ok := sipStartLine(data)
	if !ok {
		return Result{}, false
	}
	if d.parse {
		parsed, err := parseSIP(data)
		if err != nil {
			return Result{}, false
		}
		detail = parsed
	}
	return Result{Static: core.SIP, Name: "sip", Detail: detail}, true
}

// sipStartLine matches "SIP/2.0 <code>" responses and "<METHOD> " requests.
func sipStartLine(data []byte) (string, bool) {
	if bytes.HasPrefix(data, sipVersion) {
		if len(data) >= len(sipVersion)+4 && data[len(sipVersion)] == ' ' {
			return string(data[len(sipVersion)+1 : len(sipVersion)+4]), true
		}
		return "", false
	}
	for _, method := range sipMethods {
		if bytes.HasPrefix(data, method) && len(data) > len(method) && data[len(method)] == ' ' {
			line := data
			if i := bytes.IndexByte(line, '\n'); i >= 0 {
				line = line[:i]
			}
			if !bytes.Contains(line, sipVersion) {
				return "", false
			}
			return string(method), true
		}
	}
	return "", false
}

// parseSIP runs the gosip packet parser and returns the request method or
// the response status code.
func parseSIP(data []byte) (string, error) {
	// PacketParser keeps per-message state, so one is built per payload.
	pp := parser.NewPacketParser(log.SIPLogger())
	msg, err := pp.ParseMessage(data)
	if err != nil {
		return "", fmt.Errorf("parse sip message: %w", err)
	}
	switch m := msg.(type) {
	case sip.Request:
		return strings.ToUpper(string(m.Method())), nil
	case sip.Response:
		return strconv.Itoa(int(m.StatusCode())), nil
	default:
		return "", fmt.Errorf("unexpected sip message %T", msg)
	}
}
