package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/jonas747/ogg"
)

var ErrUnknownCodec = errors.New("unknown codec")

// Ogg identification headers by the first bytes of the first packet.
var oggMagic = []struct {
	prefix []byte
	name   string
}{
	{prefix: []byte("OpusHead"), name: "opus"},
	{prefix: []byte("\x01vorbis"), name: "vorbis"},
	{prefix: []byte("\x7fFLAC"), name: "flac"},
	{prefix: []byte("Speex   "), name: "speex"},
}

// ProbeOgg reads the first packet of an Ogg stream and names its codec.
func ProbeOgg(r io.Reader) (string, error) {
	decoder := ogg.NewPacketDecoder(ogg.NewDecoder(r))
	packet, _, err := decoder.Decode()
	if err != nil {
		return "", fmt.Errorf("failed to read first ogg packet: %w", err)
	}
	for _, m := range oggMagic {
		if bytes.HasPrefix(packet, m.prefix) {
			return m.name, nil
		}
	}
	return "", ErrUnknownCodec
}
