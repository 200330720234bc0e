package deployflow

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/tidwall/gjson"
)

// Artifact file names inside a contract's artifact directory.
const (
	ABIFileName      = "abi.json"
	BytecodeFileName = "bin.txt"
)

// Artifact is a compiled contract: its interface descriptor and deployable bytecode.
type Artifact struct {
	Name     string
	ABI      abi.ABI
	Bytecode []byte
}

// LoadArtifact reads <dir>/abi.json and <dir>/bin.txt.
//
// The descriptor may be a bare ABI array or a compiler output object holding
// the ABI under "abi". The bytecode text may carry surrounding whitespace and
// an optional 0x prefix.
func LoadArtifact(dir string) (*Artifact, error) {
	name := filepath.Base(filepath.Clean(dir))

	abiPath := filepath.Join(dir, ABIFileName)
	abiData, err := readArtifactFile(name, abiPath)
	if err != nil {
		return nil, err
	}
	binPath := filepath.Join(dir, BytecodeFileName)
	binData, err := readArtifactFile(name, binPath)
	if err != nil {
		return nil, err
	}

	parsed, err := ParseABIDescriptor(abiData)
	if err != nil {
		return nil, &ArtifactError{Name: name, Path: abiPath, Kind: ErrArtifactMalformed, Err: err}
	}
	code, err := DecodeBytecode(binData)
	if err != nil {
		return nil, &ArtifactError{Name: name, Path: binPath, Kind: ErrArtifactMalformed, Err: err}
	}

	return &Artifact{Name: name, ABI: parsed, Bytecode: code}, nil
}

// MustLoadArtifact is like LoadArtifact but panics on error.
func MustLoadArtifact(dir string) *Artifact {
	art, err := LoadArtifact(dir)
	if err != nil {
		panic(err)
	}
	return art
}

func readArtifactFile(name, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &ArtifactError{Name: name, Path: path, Kind: ErrArtifactNotFound}
	}
	if err != nil {
		return nil, &ArtifactError{Name: name, Path: path, Kind: ErrArtifactNotFound, Err: err}
	}
	return data, nil
}

// ParseABIDescriptor parses an interface descriptor into an abi.ABI.
func ParseABIDescriptor(data []byte) (abi.ABI, error) {
	if !gjson.ValidBytes(data) {
		return abi.ABI{}, errors.New("invalid JSON")
	}
	desc := gjson.ParseBytes(data)
	if desc.IsObject() {
		desc = desc.Get("abi")
		if !desc.IsArray() {
			return abi.ABI{}, errors.New(`descriptor object has no "abi" array`)
		}
	}
	if !desc.IsArray() {
		return abi.ABI{}, errors.New("descriptor is not an ABI array")
	}
	return abi.JSON(strings.NewReader(desc.Raw))
}

// DecodeBytecode trims whitespace and an optional 0x prefix, then hex-decodes.
func DecodeBytecode(text []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(text)
	if bytes.HasPrefix(trimmed, []byte("0x")) || bytes.HasPrefix(trimmed, []byte("0X")) {
		trimmed = trimmed[2:]
	}
	if len(trimmed) == 0 {
		return nil, errors.New("empty bytecode")
	}
	code := make([]byte, hex.DecodedLen(len(trimmed)))
	if _, err := hex.Decode(code, trimmed); err != nil {
		return nil, fmt.Errorf("bytecode is not valid hex: %w", err)
	}
	return code, nil
}

// HasMethod returns true if the artifact's interface declares the method.
func (a *Artifact) HasMethod(name string) bool {
	_, ok := a.ABI.Methods[name]
	return ok
}
