package classify

import (
	"encoding/binary"

	"firestige.xyz/conntag/internal/core"
)

const (
	tlsRecordHandshake = 0x16
	tlsClientHello     = 0x01
	tlsServerHello     = 0x02
	tlsRecordHeaderLen = 5
)

type tlsOptions struct {
	// Reject handshakes whose negotiated version is below MinVersion, e.g. "1.2".
	MinVersion string `mapstructure:"min_version"`
}

// tlsDetector recognises ClientHello and ServerHello handshake records.
type tlsDetector struct {
	minVersion uint16
}

func newTLSDetector(options map[string]any) (Detector, error) {
	var opts tlsOptions
	if err := decodeOptions(options, &opts); err != nil {
		return nil, err
	}
	d := &tlsDetector{}
	if opts.MinVersion != "" {
		v, ok := tlsVersionByName[opts.MinVersion]
		if !ok {
			return nil, errInvalidOption("min_version", opts.MinVersion)
		}
		d.minVersion = v
	}
	return d, nil
}

func (d *tlsDetector) Name() string { return "tls" }

// Detect reads the legacy version of the hello message. Versions negotiated
// through extensions are not inspected.
func (d *tlsDetector) Detect(p *Packet) (Result, bool) {
	data := p.Payload
	// record header (5) + handshake type (1) + length (3) + version (2)
	if len(data) < tlsRecordHeaderLen+6 || data[0] != tlsRecordHandshake || data[1] != 0x03 {
		return Result{}, false
	}
	hs := data[tlsRecordHeaderLen:]
	if hs[0] != tlsClientHello && hs[0] != tlsServerHello {
		return Result{}, false
	}
	version := binary.BigEndian.Uint16(hs[4:6])
	name, ok := tlsVersionNames[version]
	if !ok || version < d.minVersion {
		return Result{}, false
	}
	return Result{Static: core.TLS, Name: "tls", Detail: name}, true
}

var tlsVersionNames = map[uint16]string{
	0x0300: "ssl3.0",
	0x0301: "tls1.0",
	0x0302: "tls1.1",
	0x0303: "tls1.2",
	0x0304: "tls1.3",
}

var tlsVersionByName = map[string]uint16{
	"1.0": 0x0301,
	"1.1": 0x0302,
	"1.2": 0x0303,
	"1.3": 0x0304,
}
