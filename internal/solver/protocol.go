package solver

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/riverdock/contractdesk/internal/domain/errs"
)

// Cmd is the request command byte.
type Cmd byte

const (
	CmdSolve      Cmd = 1
	CmdMonteCarlo Cmd = 2
)

// Status is the response status byte.
type Status byte

const (
	StatusOptimal    Status = 0
	StatusInfeasible Status = 1
	StatusError      Status = 2
)

// ModelDescriptor names one product group's model shape: the solver
// variables in encoding order, and the route/constraint counts needed to
// decode a response payload whose arrays carry no length prefix of their
// own.
type ModelDescriptor struct {
	VariableNames   []string
	RouteCount      int
	ConstraintCount int
}

// writeFrame writes a length-prefixed (4-byte big-endian) frame: cmd byte
// followed by payload.
func writeFrame(w io.Writer, cmd Cmd, payload []byte) error {
	length := uint32(1 + len(payload))
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, length)
	if _, err := w.Write(header); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(cmd)}); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame reads one length-prefixed frame and splits it into its status
// byte and payload.
func readFrame(r io.Reader) (Status, []byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	length := binary.BigEndian.Uint32(header)
	if length == 0 {
		return 0, nil, fmt.Errorf("empty frame")
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return Status(body[0]), body[1:], nil
}

// encodeVariablesBlock encodes the model descriptor (variable names, route
// count, constraint count) followed by each named variable's value as a
// little-endian 64-bit float, in descriptor order.
func encodeVariablesBlock(desc ModelDescriptor, variables map[string]float64) []byte {
	var buf bytes.Buffer
	writeU32LE(&buf, uint32(len(desc.VariableNames)))
	for _, name := range desc.VariableNames {
		writeU32LE(&buf, uint32(len(name)))
		buf.WriteString(name)
	}
	writeU32LE(&buf, uint32(desc.RouteCount))
	writeU32LE(&buf, uint32(desc.ConstraintCount))
	for _, name := range desc.VariableNames {
		writeF64LE(&buf, variables[name])
	}
	return buf.Bytes()
}

func encodeSolveRequest(desc ModelDescriptor, variables map[string]float64) []byte {
	return encodeVariablesBlock(desc, variables)
}

func encodeMonteCarloRequest(desc ModelDescriptor, variables map[string]float64, nScenarios uint32) []byte {
	var buf bytes.Buffer
	writeU32LE(&buf, nScenarios)
	buf.Write(encodeVariablesBlock(desc, variables))
	return buf.Bytes()
}

// SolveResult is the decoded payload of an optimal/infeasible solve
// response.
type SolveResult struct {
	Status       Status
	Profit       float64
	Tons         float64
	Vessels      float64
	Cost         float64
	EffBarge     float64
	RouteTons    []float64
	RouteProfits []float64
	Margins      []float64
	Transits     []float64
	ShadowPrices []float64
}

func decodeSolveResponse(status Status, payload []byte, desc ModelDescriptor) (SolveResult, error) {
	res := SolveResult{Status: status}
	if status != StatusOptimal {
		return res, nil
	}
	r := bytes.NewReader(payload)
	var err error
	if res.Profit, err = readF64LE(r); err != nil {
		return res, decodeErr(err)
	}
	if res.Tons, err = readF64LE(r); err != nil {
		return res, decodeErr(err)
	}
	if res.Vessels, err = readF64LE(r); err != nil {
		return res, decodeErr(err)
	}
	if res.Cost, err = readF64LE(r); err != nil {
		return res, decodeErr(err)
	}
	if res.EffBarge, err = readF64LE(r); err != nil {
		return res, decodeErr(err)
	}
	if res.RouteTons, err = readF64Slice(r, desc.RouteCount); err != nil {
		return res, decodeErr(err)
	}
	if res.RouteProfits, err = readF64Slice(r, desc.RouteCount); err != nil {
		return res, decodeErr(err)
	}
	if res.Margins, err = readF64Slice(r, desc.RouteCount); err != nil {
		return res, decodeErr(err)
	}
	if res.Transits, err = readF64Slice(r, desc.RouteCount); err != nil {
		return res, decodeErr(err)
	}
	if res.ShadowPrices, err = readF64Slice(r, desc.ConstraintCount); err != nil {
		return res, decodeErr(err)
	}
	return res, nil
}

// MonteCarloResult is the decoded payload of a monte_carlo response.
type MonteCarloResult struct {
	Status        Status
	NScenarios    uint32
	NFeasible     uint32
	NInfeasible   uint32
	Mean          float64
	StdDev        float64
	P5            float64
	P25           float64
	P50           float64
	P75           float64
	P95           float64
	Min           float64
	Max           float64
	Sensitivities []float64
}

func decodeMonteCarloResponse(status Status, payload []byte, desc ModelDescriptor) (MonteCarloResult, error) {
	res := MonteCarloResult{Status: status}
	if status != StatusOptimal {
		return res, nil
	}
	r := bytes.NewReader(payload)
	var err error
	if res.NScenarios, err = readU32LE(r); err != nil {
		return res, decodeErr(err)
	}
	if res.NFeasible, err = readU32LE(r); err != nil {
		return res, decodeErr(err)
	}
	if res.NInfeasible, err = readU32LE(r); err != nil {
		return res, decodeErr(err)
	}
	fields := []*float64{&res.Mean, &res.StdDev, &res.P5, &res.P25, &res.P50, &res.P75, &res.P95, &res.Min, &res.Max}
	for _, f := range fields {
		if *f, err = readF64LE(r); err != nil {
			return res, decodeErr(err)
		}
	}
	var reserved float64
	if reserved, err = readF64LE(r); err != nil {
		return res, decodeErr(err)
	}
	_ = reserved
	if res.Sensitivities, err = readF64Slice(r, len(desc.VariableNames)); err != nil {
		return res, decodeErr(err)
	}
	return res, nil
}

func decodeErr(err error) error {
	return errs.New(errs.SolverCrashed, "malformed response payload", err)
}

func writeU32LE(buf *bytes.Buffer, v uint32) {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	buf.Write(b)
}

func writeF64LE(buf *bytes.Buffer, v float64) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	buf.Write(b)
}

func readU32LE(r io.Reader) (uint32, error) {
	b := make([]byte, 4)
	if _, err := io.ReadFull(r, b); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func readF64LE(r io.Reader) (float64, error) {
	b := make([]byte, 8)
	if _, err := io.ReadFull(r, b); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

func readF64Slice(r io.Reader, n int) ([]float64, error) {
	if n < 0 {
		n = 0
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v, err := readF64LE(r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
