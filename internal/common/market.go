package common

import (
	"fmt"
	"os"
	"path/filepath"

	"gridmarket-go/internal/models"

	"gopkg.in/yaml.v2"
)

// LoadMarketConfig reads the chain-side market description (chain id, escrow
// contract address, token decimals) from a yaml file.
func LoadMarketConfig(marketFile string) (models.MarketConfig, error) {
	var marketPath string
	if filepath.IsAbs(marketFile) {
		marketPath = marketFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return models.MarketConfig{}, fmt.Errorf("failed to get working directory: %w", err)
		}
		marketPath = filepath.Join(wd, marketFile)
	}

	data, err := os.ReadFile(marketPath)
	if err != nil {
		return models.MarketConfig{}, fmt.Errorf("unable to read %s: %w", marketFile, err)
	}

	var market models.MarketConfig
	if err := yaml.Unmarshal(data, &market); err != nil {
		return models.MarketConfig{}, fmt.Errorf("unable to parse %s: %w", marketFile, err)
	}

	if market.ChainId <= 0 {
		return models.MarketConfig{}, fmt.Errorf("%s: chain_id must be positive", marketFile)
	}
	if market.ContractAddress == "" {
		return models.MarketConfig{}, fmt.Errorf("%s: contract_address is required", marketFile)
	}
	if market.TokenDecimals < 0 || market.TokenDecimals > 18 {
		return models.MarketConfig{}, fmt.Errorf("%s: token_decimals must be between 0 and 18", marketFile)
	}

	return market, nil
}
