package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
controller: "0x000000000000000000000000000000000000ad01"
registry:
  feeBps: 30
  protocolFeePortionBps: 2500
  feeRecipient: "0x000000000000000000000000000000000000fee5"
router:
  address: "0x000000000000000000000000000000000000a011"
  forwardingFeeBps: 25
venue:
  account: "0x000000000000000000000000000000000000be11"
tokens:
  - symbol: WETH
    name: Wrapped Ether
    address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
    decimals: 18
redis:
  addr: "localhost:6379"
  stream: "amm:test"
  maxLen: 500
`

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))
	t.Setenv(RedisPasswordEnv, "hunter2")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, uint16(30), cfg.Registry.FeeBps)
	assert.Equal(t, uint16(2500), cfg.Registry.ProtocolFeePortionBps)
	require.NotNil(t, cfg.Router.ForwardingFeeBps)
	assert.Equal(t, uint16(25), *cfg.Router.ForwardingFeeBps)
	require.Len(t, cfg.Tokens, 1)
	assert.Equal(t, uint8(18), cfg.Tokens[0].Decimals)
	assert.Equal(t, "amm:test", cfg.Redis.Stream)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
	assert.Equal(t, common.HexToAddress("0xad01"), Address(cfg.Controller))

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	testCases := []struct {
		name    string
		replace [2]string
		wantErr string
	}{
		{"Bad Controller", [2]string{`controller: "0x000000000000000000000000000000000000ad01"`, `controller: "nope"`}, "controller"},
		{"Zero Fee Recipient", [2]string{`"0x000000000000000000000000000000000000fee5"`, `"0x0000000000000000000000000000000000000000"`}, "registry.feeRecipient"},
		{"Missing Router", [2]string{`address: "0x000000000000000000000000000000000000a011"`, `address: ""`}, "router.address"},
		{"Empty Symbol", [2]string{"symbol: WETH", `symbol: ""`}, "tokens[0].symbol"},
		{"Negative MaxLen", [2]string{"maxLen: 500", "maxLen: -1"}, "redis.maxLen"},
		{"Malformed YAML", [2]string{"feeBps: 30", "feeBps: [30"}, "failed to parse"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			doc := strings.Replace(validYAML, tc.replace[0], tc.replace[1], 1)
			_, err := Parse([]byte(doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
