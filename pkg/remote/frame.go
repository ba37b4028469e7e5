package remote

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	perrors "pcode/pkg/errors"
	"pcode/pkg/image"
	"pcode/pkg/serializer"
	"pcode/pkg/vm"
)

// MaxFrameSize bounds a single frame in either direction.
const MaxFrameSize = 1 << 20

// Request asks the server to run one program. Exactly one of Image and Name
// is set.
type Request struct {
	Image *image.Image
	Name  string // image held in the server's store
	Stdin []byte
}

// Response reports how the program stopped. Error is set instead when the
// server could not run it at all.
type Response struct {
	Reason   vm.ExitReason
	ExitCode int16
	PC       uint16
	Line     uint16
	Stdout   []byte
	Error    string
}

// Err converts a failed response to an error: a *vm.Fault for a program
// fault or a plain error for a rejected request.
func (r *Response) Err() error {
	switch {
	case r.Error != "":
		return errors.New(r.Error)
	case r.Reason.IsFault():
		return &vm.Fault{Reason: r.Reason, PC: r.PC, Line: r.Line}
	}
	return nil
}

func (r *Request) String() string {
	if r.Name != "" {
		return "@" + r.Name
	}
	return fmt.Sprintf("image of %d code bytes", len(r.Image.Code))
}

func (r *Response) String() string {
	if r.Error != "" {
		return "rejected: " + r.Error
	}
	if r.Reason.IsFault() {
		return fmt.Sprintf("%s at pc=%d", r.Reason, r.PC)
	}
	return fmt.Sprintf("exit code %d", r.ExitCode)
}

// Frames are a little-endian u32 length followed by the body. A request body
// is the program blob then the stdin blob; the program blob is either an
// encoded image or "@" and a store name.
func encodeRequest(req *Request) ([]byte, error) {
	var program []byte
	switch {
	case req.Image != nil && req.Name != "":
		return nil, fmt.Errorf("request names %q and carries an image", req.Name)
	case req.Image != nil:
		program = image.Encode(req.Image)
	case req.Name != "":
		program = []byte("@" + req.Name)
	default:
		return nil, fmt.Errorf("request has no program")
	}
	body := serializer.AppendBlob(nil, program)
	return serializer.AppendBlob(body, req.Stdin), nil
}

func decodeRequest(body []byte) (*Request, error) {
	program, rest, err := serializer.ReadBlob(body)
	if err != nil {
		return nil, perrors.WrapProtocolError(err, "program")
	}
	stdin, rest, err := serializer.ReadBlob(rest)
	if err != nil {
		return nil, perrors.WrapProtocolError(err, "stdin")
	}
	if len(rest) != 0 {
		return nil, perrors.ProtocolErrorf("%d bytes after request", len(rest))
	}

	req := &Request{Stdin: stdin}
	if name, ok := strings.CutPrefix(string(program), "@"); ok {
		if name == "" {
			return nil, perrors.ProtocolErrorf("empty image name")
		}
		req.Name = name
		return req, nil
	}
	if req.Image, err = image.Decode(program); err != nil {
		return nil, perrors.WrapProtocolError(err, "image")
	}
	return req, nil
}

func encodeResponse(resp *Response) []byte {
	body := []byte{byte(resp.Reason)}
	for _, v := range []uint16{uint16(resp.ExitCode), resp.PC, resp.Line} {
		body = append(body, serializer.EncodeLittleEndian(2, uint64(v))...)
	}
	body = serializer.AppendBlob(body, resp.Stdout)
	return serializer.AppendBlob(body, []byte(resp.Error))
}

func decodeResponse(body []byte) (*Response, error) {
	if len(body) < 7 {
		return nil, perrors.ProtocolErrorf("response of %d bytes", len(body))
	}
	resp := &Response{
		Reason:   vm.ExitReason(body[0]),
		ExitCode: int16(serializer.DecodeLittleEndian(body[1:3])),
		PC:       uint16(serializer.DecodeLittleEndian(body[3:5])),
		Line:     uint16(serializer.DecodeLittleEndian(body[5:7])),
	}
	stdout, rest, err := serializer.ReadBlob(body[7:])
	if err != nil {
		return nil, perrors.WrapProtocolError(err, "stdout")
	}
	msg, rest, err := serializer.ReadBlob(rest)
	if err != nil {
		return nil, perrors.WrapProtocolError(err, "error")
	}
	if len(rest) != 0 {
		return nil, perrors.ProtocolErrorf("%d bytes after response", len(rest))
	}
	resp.Stdout = stdout
	resp.Error = string(msg)
	return resp, nil
}

func writeFrame(w io.Writer, body []byte) error {
	if len(body) > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds %d", len(body), MaxFrameSize)
	}
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(body)))
	if _, err := w.Write(size[:]); err != nil {
		return fmt.Errorf("failed to write frame size: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("failed to write frame content: %w", err)
	}
	return nil
}

func readFrame(r io.Reader) ([]byte, error) {
	var size [4]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		return nil, fmt.Errorf("failed to read frame size: %w", err)
	}
	n := binary.LittleEndian.Uint32(size[:])
	if n > MaxFrameSize {
		return nil, perrors.ProtocolErrorf("frame of %d bytes exceeds %d", n, MaxFrameSize)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("failed to read frame content: %w", err)
	}
	return body, nil
}
