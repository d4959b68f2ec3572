package common

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMarketFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "market.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write market file: %v", err)
	}
	return path
}

func TestLoadMarketConfig_Valid(t *testing.T) {
	path := writeMarketFile(t, `
chain_id: 31337
contract_address: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
token_decimals: 3
`)

	market, err := LoadMarketConfig(path)
	if err != nil {
		t.Fatalf("LoadMarketConfig failed: %v", err)
	}
	if market.ChainId != 31337 {
		t.Errorf("Expected chain id 31337, got %d", market.ChainId)
	}
	if market.TokenDecimals != 3 {
		t.Errorf("Expected 3 decimals, got %d", market.TokenDecimals)
	}
}

func TestLoadMarketConfig_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing chain id", `contract_address: "0xabc"`},
		{"missing contract", `chain_id: 1`},
		{"bad decimals", "chain_id: 1\ncontract_address: \"0xabc\"\ntoken_decimals: 30"},
		{"not yaml", "{{{"},
	}
	for _, tc := range cases {
		path := writeMarketFile(t, tc.content)
		if _, err := LoadMarketConfig(path); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestLoadMarketConfig_MissingFile(t *testing.T) {
	if _, err := LoadMarketConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Expected error for missing file")
	}
}
