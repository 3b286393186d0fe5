package dashboard

import (
	"context"
	"errors"
	"fmt"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"sort"
	"strings"
)

var (
	ErrUnsupportedChain = errors.New("unsupported chain ID")
	ErrInvalidAddress   = errors.New("contract address must be set")
	ErrTokenNotFound    = errors.New("token not found")
)

// ChainPlatforms maps chain IDs to the token provider platform identifiers.
var ChainPlatforms = map[string]string{
	"1":     "ethereum",
	"56":    "binance-smart-chain",
	"137":   "polygon-pos",
	"42161": "arbitrum-one",
	"10":    "optimistic-ethereum",
	"43114": "avalanche",
	"250":   "fantom",
	"8453":  "base",
	"100":   "xdai",
	"42220": "celo",
	"25":    "cronos",
	"1284":  "moonbeam",
	"1285":  "moonriver",
}

var chainNames = map[string]string{
	"1":     "Ethereum",
	"56":    "BNB Smart Chain",
	"137":   "Polygon",
	"42161": "Arbitrum",
	"10":    "Optimism",
	"43114": "Avalanche",
	"250":   "Fantom",
	"8453":  "Base",
	"100":   "Gnosis",
	"42220": "Celo",
	"25":    "Cronos",
	"1284":  "Moonbeam",
	"1285":  "Moonriver",
}

var exchangeTickers = map[string]string{
	"BTC":  "BTCUSDT",
	"ETH":  "ETHUSDT",
	"BNB":  "BNBUSDT",
	"SOL":  "SOLUSDT",
	"XRP":  "XRPUSDT",
	"ADA":  "ADAUSDT",
	"DOGE": "DOGEUSDT",
	"DOT":  "DOTUSDT",
	"TRX":  "TRXUSDT",
	"LTC":  "LTCUSDT",
}

func ChainPlatform(chainID string) (string, error) {
	platform, ok := ChainPlatforms[chainID]
	if !ok {
		return "", fmt.Errorf("%w: [%v]", ErrUnsupportedChain, chainID)
	}

	return platform, nil
}

func ChainName(chainID string) (string, bool) {
	name, ok := chainNames[chainID]
	return name, ok
}

// ChainIDs returns the supported chain IDs in ascending numeric order.
func ChainIDs() []string {
	ids := make([]string, 0, len(ChainPlatforms))
	for id := range ChainPlatforms {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		if len(ids[i]) != len(ids[j]) {
			return len(ids[i]) < len(ids[j])
		}
		return ids[i] < ids[j]
	})

	return ids
}

// ExchangeTickerOf maps a token symbol to its exchange trading pair.
func ExchangeTickerOf(symbol string) (string, bool) {
	ticker, ok := exchangeTickers[strings.ToUpper(symbol)]
	return ticker, ok
}

type TokenRef struct {
	Address string
	ChainID string
}

type TokenMetadata struct {
	Address  string
	ChainID  string
	Symbol   string
	Name     string
	Decimals int
	Logo     string
}

type TokenPrice struct {
	Price          decimal.Decimal
	PriceChange24h decimal.Decimal
}

type TokenInfo struct {
	Symbol   string
	Name     string
	Decimals int
	Logo     string
	// Price is nil when the provider has no price for the token.
	Price *TokenPrice
}

type TokenProvider interface {
	// TokenMetadata returns ErrTokenNotFound if the provider does not
	// know the contract.
	TokenMetadata(
		ctx context.Context,
		platform string,
		address string,
	) (*TokenMetadata, error)

	// TokenPrice returns ErrTokenNotFound if the provider has no price
	// for the contract.
	TokenPrice(
		ctx context.Context,
		platform string,
		address string,
	) (*TokenPrice, error)
}

type TokenLookup struct {
	logger   Logger
	provider TokenProvider
}

func NewTokenLookup(logger Logger, provider TokenProvider) *TokenLookup {
	return &TokenLookup{
		logger:   logger.WithField("component", "token-lookup"),
		provider: provider,
	}
}

func (tl *TokenLookup) TokenMetadata(
	ctx context.Context,
	address string,
	chainID string,
) (*TokenMetadata, error) {
	platform, address, err := validateTokenRef(address, chainID)
	if err != nil {
		return nil, err
	}

	metadata, err := tl.provider.TokenMetadata(ctx, platform, address)
	if err != nil {
		return nil, err
	}

	metadata.ChainID = chainID

	return metadata, nil
}

// TokenInfo fetches the token metadata and price concurrently. A missing
// price does not fail the lookup.
func (tl *TokenLookup) TokenInfo(
	ctx context.Context,
	address string,
	chainID string,
) (*TokenInfo, error) {
	platform, address, err := validateTokenRef(address, chainID)
	if err != nil {
		return nil, err
	}

	lookupLogger := tl.logger.WithFields(
		map[string]interface{}{
			"address": address,
			"chainID": chainID,
		},
	)

	var (
		metadata *TokenMetadata
		price    *TokenPrice
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		var err error
		metadata, err = tl.provider.TokenMetadata(groupCtx, platform, address)
		return err
	})

	group.Go(func() error {
		var err error
		price, err = tl.provider.TokenPrice(groupCtx, platform, address)
		if err != nil {
			// A failed metadata call cancels the price call as well.
			if !errors.Is(err, ErrTokenNotFound) && groupCtx.Err() == nil {
				lookupLogger.Warningf("could not get token price: [%v]", err)
			}
			price = nil
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		if !errors.Is(err, ErrTokenNotFound) {
			lookupLogger.Errorf("could not get token metadata: [%v]", err)
		}
		return nil, err
	}

	return &TokenInfo{
		Symbol:   metadata.Symbol,
		Name:     metadata.Name,
		Decimals: metadata.Decimals,
		Logo:     metadata.Logo,
		Price:    price,
	}, nil
}

// TokenMetadataBatch looks up all tokens concurrently and returns the ones
// which were found, in the order they were given.
func (tl *TokenLookup) TokenMetadataBatch(
	ctx context.Context,
	tokens []TokenRef,
) []*TokenMetadata {
	results := make([]*TokenMetadata, len(tokens))

	group, groupCtx := errgroup.WithContext(ctx)

	for index, token := range tokens {
		index, token := index, token

		group.Go(func() error {
			metadata, err := tl.TokenMetadata(
				groupCtx,
				token.Address,
				token.ChainID,
			)
			if err != nil {
				tl.logger.Warningf(
					"could not get metadata of [%v] on chain [%v]: [%v]",
					token.Address,
					token.ChainID,
					err,
				)
				return nil
			}

			results[index] = metadata
			return nil
		})
	}

	_ = group.Wait()

	found := make([]*TokenMetadata, 0, len(results))
	for _, metadata := range results {
		if metadata != nil {
			found = append(found, metadata)
		}
	}

	return found
}

// ExchangeTicker resolves the exchange trading pair of the token.
func (tl *TokenLookup) ExchangeTicker(
	ctx context.Context,
	address string,
	chainID string,
) (string, error) {
	metadata, err := tl.TokenMetadata(ctx, address, chainID)
	if err != nil {
		return "", err
	}

	ticker, ok := ExchangeTickerOf(metadata.Symbol)
	if !ok {
		return "", fmt.Errorf(
			"%w: no exchange ticker for [%v]",
			ErrTokenNotFound,
			metadata.Symbol,
		)
	}

	return ticker, nil
}

func validateTokenRef(address, chainID string) (string, string, error) {
	platform, err := ChainPlatform(chainID)
	if err != nil {
		return "", "", err
	}

	address = strings.ToLower(strings.TrimSpace(address))
	if len(address) == 0 {
		return "", "", ErrInvalidAddress
	}

	return platform, address, nil
}
