package mqttcodec

import "io"

// Byte-codec primitives for encoding: big-endian integers and
// length-prefixed strings written to an io.Writer (the packet's Encode
// methods write into a bytes.Buffer that is then queued for output).

func writeByte(w io.Writer, value byte) error {
	_, err := w.Write([]byte{value})
	return err
}

func writeUint16(w io.Writer, value uint16) error {
	_, err := w.Write([]byte{byte(value >> 8), byte(value)})
	return err
}

func writeString(w io.Writer, value string) error {
	if err := writeUint16(w, uint16(len(value))); err != nil {
		return err
	}
	if len(value) == 0 {
		return nil
	}
	_, err := io.WriteString(w, value)
	return err
}

func writeBytes(w io.Writer, value []byte) error {
	if err := writeUint16(w, uint16(len(value))); err != nil {
		return err
	}
	if len(value) == 0 {
		return nil
	}
	_, err := w.Write(value)
	return err
}
