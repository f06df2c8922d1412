package contract

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Address is the deployed WavePortal contract.
var Address = common.HexToAddress("0x81739106e96196efA87F558D41a5412249BBC2cC")

// GasLimit is the ceiling applied to every wave transaction.
const GasLimit uint64 = 300000

const (
	methodGetAllWaves   = "getAllWaves"
	methodGetTotalWaves = "getTotalWaves"
	methodWave          = "wave"
	eventNewWave        = "NewWave"
)

//go:embed WavePortal.json
var artifact []byte

// ABI is the parsed WavePortal interface.
var ABI = mustParseArtifact(artifact)

func mustParseArtifact(b []byte) abi.ABI {
	var a struct {
		ABI json.RawMessage `json:"abi"`
	}
	if err := json.Unmarshal(b, &a); err != nil {
		panic(fmt.Sprintf("contract artifact: %v", err))
	}
	parsed, err := abi.JSON(strings.NewReader(string(a.ABI)))
	if err != nil {
		panic(fmt.Sprintf("contract abi: %v", err))
	}
	return parsed
}
