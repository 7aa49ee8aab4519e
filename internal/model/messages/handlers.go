package messages

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"max.ks1230/currency-rates/internal/entity/currency"
	"max.ks1230/currency-rates/internal/model/customerr"
	"max.ks1230/currency-rates/internal/model/rates"
)

const helloMessage = "Hello! I am CurrencyRates bot 💱\n" +
	"/rate - current rate\n" +
	"/refresh - fetch new rates if they are stale\n" +
	"/swap - swap source and target currencies\n" +
	"/source CODE, /target CODE - change the pair\n" +
	"/convert AMOUNT - convert an amount"

const (
	dontUnderstandMessage = "I don't understand you :("
	loveToTalkMessage     = "I would love to talk about it more!"
	okMessage             = "Gotcha!"
	noRateMessage         = "There is no rate yet. Try /refresh"

	upToDateMessage       = "Rates are already up to date"
	updatedMessage        = "Rates updated"
	refreshFailedTemplate = "Failed to update rates: %v"

	pairChangedTemplate = "Gotcha! Now %s, the rate will follow shortly"

	incorrectUsageMessage    = "That is an incorrect command usage"
	incorrectCurrencyMessage = "Currency code should be three letters, like USD"
	incorrectAmountMessage   = "The amount is incorrect"
	cannotSavePairMessage    = "Can't change your currencies atm. Try later"
)

const (
	startCommand   = "/start"
	rateCommand    = "/rate"
	refreshCommand = "/refresh"
	swapCommand    = "/swap"
	targetCommand  = "/target"
	sourceCommand  = "/source"
	convertCommand = "/convert"
)

type rateEngine interface {
	Current() currency.Rate
	Pair(ctx context.Context) (currency.Pair, error)
	Refresh(ctx context.Context) rates.RefreshOutcome
	ConsumeOutcome() (rates.RefreshOutcome, bool)
	Acknowledge(o rates.RefreshOutcome) bool
	Swap(ctx context.Context) error
	SetTarget(ctx context.Context, code string) error
	SetSource(ctx context.Context, code string) error
}

type handler func(ctx context.Context, arg string, userID int64) (string, error)

type handlerMap map[string]handler

type HandlerService struct {
	handlersMap handlerMap
	engine      rateEngine
}

func newHandler(engine rateEngine) *HandlerService {
	res := &HandlerService{
		handlersMap: nil,
		engine:      engine,
	}
	res.handlersMap = newMap(res)
	return res
}

func (s *HandlerService) HandleMessage(ctx context.Context, text string, userID int64) (string, error) {
	cmd, arg := parseCommand(text)

	handler, ok := s.handlersMap[cmd]
	if ok {
		return handler(ctx, arg, userID)
	}
	return dontUnderstandMessage, nil
}

func newMap(s *HandlerService) handlerMap {
	m := make(handlerMap)
	m[startCommand] = s.handleStart
	m[rateCommand] = s.handleRate
	m[refreshCommand] = s.handleRefresh
	m[swapCommand] = s.handleSwap
	m[targetCommand] = s.handleTarget
	m[sourceCommand] = s.handleSource
	m[convertCommand] = s.handleConvert

	m[""] = s.handleNoCommand

	return m
}

func (s *HandlerService) handleStart(_ context.Context, _ string, _ int64) (string, error) {
	return helloMessage, nil
}

// handleRate shows the current rate together with a refresh outcome nobody
// has seen yet, e.g. one triggered over kafka.
func (s *HandlerService) handleRate(_ context.Context, _ string, _ int64) (string, error) {
	text := formatRate(s.engine.Current())
	if outcome, ok := s.engine.ConsumeOutcome(); ok {
		text = outcomeNotice(outcome) + "\n\n" + text
	}
	return text, nil
}

func (s *HandlerService) handleRefresh(ctx context.Context, _ string, _ int64) (string, error) {
	outcome := s.engine.Refresh(ctx)
	// shown here, so /rate must not repeat it; a newer one stays pending
	s.engine.Acknowledge(outcome)
	return outcomeNotice(outcome) + "\n\n" + formatRate(s.engine.Current()), nil
}

func (s *HandlerService) handleSwap(ctx context.Context, _ string, _ int64) (string, error) {
	if err := s.engine.Swap(ctx); err != nil {
		return cannotSavePairMessage, errors.Wrap(err, "handle swap")
	}
	return s.pairChanged(ctx)
}

func (s *HandlerService) handleTarget(ctx context.Context, arg string, _ int64) (string, error) {
	return s.changePair(ctx, arg, s.engine.SetTarget)
}

func (s *HandlerService) handleSource(ctx context.Context, arg string, _ int64) (string, error) {
	return s.changePair(ctx, arg, s.engine.SetSource)
}

func (s *HandlerService) changePair(ctx context.Context, arg string, set func(context.Context, string) error) (string, error) {
	fields := strings.Fields(arg)
	if len(fields) != 1 {
		return incorrectUsageMessage, nil
	}

	err := set(ctx, fields[0])
	if errors.Is(err, customerr.ErrInvalidCurrency) {
		return incorrectCurrencyMessage, nil
	}
	if err != nil {
		return cannotSavePairMessage, errors.Wrap(err, "change pair")
	}
	return s.pairChanged(ctx)
}

func (s *HandlerService) pairChanged(ctx context.Context) (string, error) {
	pair, err := s.engine.Pair(ctx)
	if err != nil {
		return okMessage, errors.Wrap(err, "read pair")
	}
	return fmt.Sprintf(pairChangedTemplate, pair), nil
}

func (s *HandlerService) handleConvert(_ context.Context, arg string, _ int64) (string, error) {
	fields := strings.Fields(arg)
	if len(fields) != 1 {
		return incorrectUsageMessage, nil
	}
	amount, err := strconv.ParseFloat(strings.ReplaceAll(fields[0], ",", "."), 64)
	if err != nil || amount < 0 {
		return incorrectAmountMessage, nil
	}

	rate := s.engine.Current()
	if rate.Source == "" {
		return noRateMessage, nil
	}
	return formatConversion(rate, amount), nil
}

func (s *HandlerService) handleNoCommand(_ context.Context, _ string, _ int64) (string, error) {
	return loveToTalkMessage, nil
}
