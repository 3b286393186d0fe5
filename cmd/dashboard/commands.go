package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"github.com/lukasz-zimnoch/dexly/dashboard"
	"github.com/lukasz-zimnoch/dexly/dashboard/techan"
	"io"
	"strings"
)

const usage = "commands: symbol <SYMBOL> | interval <" +
	"1m|5m|15m|1h|4h|1d> | chart | table | lookup <chainID> <address> | " +
	"chains | quit"

type chartController interface {
	SetFilter(filter *dashboard.CandleFilter) error

	Snapshot() *dashboard.CandleSnapshot
}

type tickerTable interface {
	Entries() []*dashboard.TickerEntry
}

type tokenLookup interface {
	TokenInfo(
		ctx context.Context,
		address string,
		chainID string,
	) (*dashboard.TokenInfo, error)
}

type commandProcessor struct {
	logger  dashboard.Logger
	chart   chartController
	table   tickerTable
	lookup  tokenLookup
	overlay *techan.ChartOverlay
	out     *terminal
}

// run reads commands line by line until the input ends, the context is
// done or the quit command is received.
func (cp *commandProcessor) run(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		if quit := cp.process(ctx, scanner.Text()); quit {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		cp.logger.Errorf("could not read commands: [%v]", err)
	}
}

func (cp *commandProcessor) process(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	command, args := strings.ToLower(fields[0]), fields[1:]

	switch command {
	case "quit", "exit":
		return true
	case "symbol":
		if len(args) != 1 {
			cp.out.println("usage: symbol <SYMBOL>")
			return false
		}

		current := cp.chart.Snapshot().Filter
		cp.setFilter(args[0], current.Interval, current.Limit)
	case "interval":
		if len(args) != 1 {
			cp.out.println("usage: interval <INTERVAL>")
			return false
		}

		current := cp.chart.Snapshot().Filter
		cp.setFilter(current.Pair, args[0], current.Limit)
	case "chart":
		snapshot := cp.chart.Snapshot()
		cp.out.println(formatChartHeader(snapshot, cp.overlay))

		if cp.overlay != nil {
			cp.out.println(cp.overlay.Describe(snapshot.Candles))
		}
	case "table":
		for _, entry := range cp.table.Entries() {
			cp.out.println(formatTickerRow(entry))
		}
	case "lookup":
		if len(args) != 2 {
			cp.out.println("usage: lookup <chainID> <address>")
			return false
		}

		cp.lookupToken(ctx, args[0], args[1])
	case "chains":
		for _, chainID := range dashboard.ChainIDs() {
			name, _ := dashboard.ChainName(chainID)
			cp.out.println(fmt.Sprintf("%-6s %v", chainID, name))
		}
	default:
		cp.out.println(usage)
	}

	return false
}

func (cp *commandProcessor) setFilter(pair, interval string, limit int) {
	filter := dashboard.NewCandleFilter(pair, interval)
	if limit > 0 {
		filter.Limit = limit
	}

	if err := cp.chart.SetFilter(filter); err != nil {
		cp.out.println(fmt.Sprintf("could not switch chart: %v", err))
	}
}

func (cp *commandProcessor) lookupToken(
	ctx context.Context,
	chainID string,
	address string,
) {
	info, err := cp.lookup.TokenInfo(ctx, address, chainID)
	if err != nil {
		switch {
		case errors.Is(err, dashboard.ErrUnsupportedChain),
			errors.Is(err, dashboard.ErrInvalidAddress):
			cp.out.println(err.Error())
		case errors.Is(err, dashboard.ErrTokenNotFound):
			cp.out.println(
				"Token not found. Please check the contract address and chain.",
			)
		default:
			cp.out.println("Failed to fetch token information")
		}
		return
	}

	line := fmt.Sprintf(
		"%v (%v) decimals=%v",
		info.Symbol,
		info.Name,
		info.Decimals,
	)

	if info.Price != nil {
		line = fmt.Sprintf(
			"%v price=%v change=%v",
			line,
			dashboard.FormatUSD(info.Price.Price),
			dashboard.FormatChange(info.Price.PriceChange24h),
		)
	}

	if ticker, ok := dashboard.ExchangeTickerOf(info.Symbol); ok {
		line = fmt.Sprintf("%v ticker=%v", line, ticker)
	}

	cp.out.println(line)
}
