package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	xrate "golang.org/x/time/rate"

	"github.com/code-payments/reclaim-server/pkg/metrics"
	"github.com/code-payments/reclaim-server/pkg/rate"
	"github.com/code-payments/reclaim-server/pkg/retry"
	"github.com/code-payments/reclaim-server/pkg/retry/backoff"
	"github.com/code-payments/reclaim-server/pkg/solana"
)

// Reference: https://station.jup.ag/docs/apis/swap-api

const (
	DefaultApiBaseUrl = "https://quote-api.jup.ag/v6/"

	quoteEndpointName            = "quote"
	swapInstructionsEndpointName = "swap-instructions"

	metricsStructName = "jupiter.client"
)

var (
	// ErrNoRoute indicates Jupiter has no route between the requested mints
	ErrNoRoute = errors.New("jupiter: no route found")

	// ErrMalformedInstruction indicates an instruction in a swap response
	// could not be decoded
	ErrMalformedInstruction = errors.New("jupiter: malformed instruction")

	errRateLimited  = errors.New("jupiter: rate limited")
	errServiceError = errors.New("jupiter: service error")
)

// Error codes Jupiter returns when a mint cannot be swapped at all
var noRouteErrorCodes = map[string]struct{}{
	"COULD_NOT_FIND_ANY_ROUTE": {},
	"NO_ROUTES_FOUND":          {},
	"TOKEN_NOT_TRADABLE":       {},
}

type Client struct {
	log        *logrus.Entry
	conf       *conf
	baseUrl    string
	httpClient *http.Client
	limiter    rate.Limiter
	retrier    retry.Retrier
}

// NewClient returns a new Jupiter client for performing on-chain swaps
func NewClient(baseUrl string, configProvider ConfigProvider) *Client {
	conf := configProvider()
	ctx := context.Background()

	return &Client{
		log:     logrus.StandardLogger().WithField("type", "jupiter/client"),
		conf:    conf,
		baseUrl: baseUrl,
		httpClient: &http.Client{
			Timeout: conf.requestTimeout.Get(ctx),
		},
		limiter: rate.NewLocalRateLimiter(xrate.Limit(conf.requestsPerSecond.Get(ctx))),
		retrier: retry.NewRetrier(
			retry.RetriableErrors(errRateLimited, errServiceError),
			retry.Limit(uint(conf.maxRetries.Get(ctx))+1),
			retry.BackoffWithJitter(backoff.BinaryExponential(250*time.Millisecond), 2*time.Second, 0.1),
		),
	}
}

// QuoteRequest describes the swap a quote is requested for
type QuoteRequest struct {
	InputMint  string
	OutputMint string
	Amount     uint64

	SlippageBps         uint32
	OnlyDirectRoutes    bool
	MaxAccounts         uint8
	AsLegacyTransaction bool
}

// Quote is a route for swapping an exact input amount. The raw response is
// retained, since it must be echoed back verbatim when requesting swap
// instructions.
type Quote struct {
	InputMint            string          `json:"inputMint"`
	OutputMint           string          `json:"outputMint"`
	InAmount             uint64          `json:"inAmount"`
	OutAmount            uint64          `json:"outAmount"`
	OtherAmountThreshold uint64          `json:"otherAmountThreshold"`
	PriceImpactPct       float64         `json:"priceImpactPct"`
	AsLegacyTransaction  bool            `json:"asLegacyTransaction"`
	Raw                  json.RawMessage `json:"raw"`
}

// GetEstimatedSwapAmount returns the minimum output amount after slippage
func (q *Quote) GetEstimatedSwapAmount() uint64 {
	return q.OtherAmountThreshold
}

// GetQuote gets an optimal route for performing a swap
func (c *Client) GetQuote(ctx context.Context, req *QuoteRequest) (*Quote, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "GetQuote")
	defer tracer.End()

	params := url.Values{}
	params.Set("inputMint", req.InputMint)
	params.Set("outputMint", req.OutputMint)
	params.Set("amount", strconv.FormatUint(req.Amount, 10))
	params.Set("slippageBps", strconv.FormatUint(uint64(req.SlippageBps), 10))
	params.Set("onlyDirectRoutes", strconv.FormatBool(req.OnlyDirectRoutes))
	params.Set("asLegacyTransaction", strconv.FormatBool(req.AsLegacyTransaction))
	if req.MaxAccounts > 0 {
		params.Set("maxAccounts", strconv.Itoa(int(req.MaxAccounts)))
	}

	respBody, err := c.do(ctx, quoteEndpointName, http.MethodGet, c.baseUrl+quoteEndpointName+"?"+params.Encode(), nil)
	if err != nil {
		tracer.OnError(err)
		return nil, err
	}

	var parsed jsonQuote
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, errors.Wrap(err, "error unmarshalling json response")
	}

	quote := &Quote{
		InputMint:           parsed.InputMint,
		OutputMint:          parsed.OutputMint,
		AsLegacyTransaction: req.AsLegacyTransaction,
		Raw:                 respBody,
	}

	if quote.InAmount, err = strconv.ParseUint(parsed.InAmount, 10, 64); err != nil {
		return nil, errors.Wrap(err, "error parsing in amount")
	}
	if quote.OutAmount, err = strconv.ParseUint(parsed.OutAmount, 10, 64); err != nil {
		return nil, errors.Wrap(err, "error parsing out amount")
	}
	if quote.OtherAmountThreshold, err = strconv.ParseUint(parsed.OtherAmountThreshold, 10, 64); err != nil {
		return nil, errors.Wrap(err, "error parsing estimated swap amount")
	}
	if len(parsed.PriceImpactPct) > 0 {
		if quote.PriceImpactPct, err = strconv.ParseFloat(parsed.PriceImpactPct, 64); err != nil {
			return nil, errors.Wrap(err, "error parsing price impact")
		}
	}

	return quote, nil
}

// SwapInstructionsRequest describes how the swap for a quote is executed
type SwapInstructionsRequest struct {
	Quote         *Quote
	UserPublicKey string

	// Optional, defaults to the user's associated account for the output mint
	DestinationTokenAccount string

	WrapAndUnwrapSol  bool
	UseSharedAccounts bool
}

type SwapInstructions struct {
	TokenLedgerInstruction    *solana.Instruction
	ComputeBudgetInstructions []solana.Instruction
	SetupInstructions         []solana.Instruction
	SwapInstruction           solana.Instruction
	CleanupInstruction        *solana.Instruction
}

// GetSwapInstructions gets the instructions to construct a transaction to sign
// and execute on chain to perform a swap with a given quote
func (c *Client) GetSwapInstructions(ctx context.Context, req *SwapInstructionsRequest) (*SwapInstructions, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "GetSwapInstructions")
	defer tracer.End()

	if req.Quote == nil || len(req.Quote.Raw) == 0 {
		return nil, errors.New("quote response is required")
	}
	if !req.Quote.AsLegacyTransaction {
		return nil, errors.New("only legacy transactions are supported")
	}

	reqBody, err := json.Marshal(&jsonSwapInstructionsRequest{
		QuoteResponse:           req.Quote.Raw,
		UserPublicKey:           req.UserPublicKey,
		DestinationTokenAccount: req.DestinationTokenAccount,
		WrapAndUnwrapSol:        req.WrapAndUnwrapSol,
		UseSharedAccounts:       req.UseSharedAccounts,
		AsLegacyTransaction:     true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error marshalling request body")
	}

	respBody, err := c.do(ctx, swapInstructionsEndpointName, http.MethodPost, c.baseUrl+swapInstructionsEndpointName, reqBody)
	if err != nil {
		tracer.OnError(err)
		return nil, err
	}

	var jsonBody jsonSwapInstructions
	if err := json.Unmarshal(respBody, &jsonBody); err != nil {
		return nil, errors.Wrap(ErrMalformedInstruction, err.Error())
	}

	var res SwapInstructions

	if jsonBody.TokenLedgerInstruction != nil {
		res.TokenLedgerInstruction, err = jsonBody.TokenLedgerInstruction.ToSolanaInstruction()
		if err != nil {
			return nil, errors.Wrap(err, "error decoding token ledger instruction")
		}
	}

	for _, jsonIxn := range jsonBody.ComputeBudgetInstructions {
		cbIxn, err := jsonIxn.ToSolanaInstruction()
		if err != nil {
			return nil, errors.Wrap(err, "error decoding compute budget instruction")
		}
		res.ComputeBudgetInstructions = append(res.ComputeBudgetInstructions, *cbIxn)
	}

	for _, jsonIxn := range jsonBody.SetupInstructions {
		setupIxn, err := jsonIxn.ToSolanaInstruction()
		if err != nil {
			return nil, errors.Wrap(err, "error decoding setup instruction")
		}
		res.SetupInstructions = append(res.SetupInstructions, *setupIxn)
	}

	if jsonBody.SwapInstruction == nil {
		return nil, errors.Wrap(ErrMalformedInstruction, "swap instruction not provided")
	}

	swapIxn, err := jsonBody.SwapInstruction.ToSolanaInstruction()
	if err != nil {
		return nil, errors.Wrap(err, "error decoding swap instruction")
	}
	res.SwapInstruction = *swapIxn

	if jsonBody.CleanupInstruction != nil {
		res.CleanupInstruction, err = jsonBody.CleanupInstruction.ToSolanaInstruction()
		if err != nil {
			return nil, errors.Wrap(err, "error decoding cleanup instruction")
		}
	}

	return &res, nil
}

// do executes a rate limited request, retrying on rate limiting and server
// errors. Jupiter error codes indicating no route map to ErrNoRoute.
func (c *Client) do(ctx context.Context, endpoint, method, endpointUrl string, body []byte) ([]byte, error) {
	var respBody []byte
	_, err := c.retrier.RetryContext(ctx, func() error {
		if err := c.limiter.Wait(ctx, endpoint); err != nil {
			return errors.Wrap(err, "error waiting for rate limiter")
		}

		httpReq, err := http.NewRequestWithContext(ctx, method, endpointUrl, bytes.NewReader(body))
		if err != nil {
			return errors.Wrap(err, "error creating http request")
		}
		if body != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return errors.Wrap(err, "error executing http request")
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(err, "error reading response body")
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			c.log.WithField("endpoint", endpoint).Debug("rate limited by jupiter")
			return errRateLimited
		case resp.StatusCode >= http.StatusInternalServerError:
			return errServiceError
		}

		var jsonErr jsonErrorResponse
		if json.Unmarshal(respBody, &jsonErr) == nil {
			if _, ok := noRouteErrorCodes[jsonErr.ErrorCode]; ok {
				return ErrNoRoute
			}
		}
		return errors.Errorf("received http status %d: %s", resp.StatusCode, string(respBody))
	})
	if err != nil {
		return nil, err
	}
	return respBody, nil
}

func (i *jsonInstruction) ToSolanaInstruction() (*solana.Instruction, error) {
	decodedProgramKey, err := base58.Decode(i.ProgramId)
	if err != nil || len(decodedProgramKey) != 32 {
		return nil, errors.Wrap(ErrMalformedInstruction, "invalid program public key")
	}

	decodedData, err := DecodeInstructionData(i.Data)
	if err != nil {
		return nil, err
	}

	var accountMetas []solana.AccountMeta
	for _, instructionAccount := range i.Accounts {
		decodedPubkey, err := base58.Decode(instructionAccount.Pubkey)
		if err != nil || len(decodedPubkey) != 32 {
			return nil, errors.Wrap(ErrMalformedInstruction, "invalid instruction account public key")
		}

		accountMetas = append(accountMetas, solana.AccountMeta{
			PublicKey:  decodedPubkey,
			IsSigner:   instructionAccount.IsSigner,
			IsWritable: instructionAccount.IsWritable,
		})
	}

	return &solana.Instruction{
		Program:  decodedProgramKey,
		Accounts: accountMetas,
		Data:     decodedData,
	}, nil
}

type jsonQuote struct {
	InputMint            string `json:"inputMint"`
	OutputMint           string `json:"outputMint"`
	InAmount             string `json:"inAmount"`
	OutAmount            string `json:"outAmount"`
	OtherAmountThreshold string `json:"otherAmountThreshold"`
	PriceImpactPct       string `json:"priceImpactPct"`
}

type jsonErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}

type jsonSwapInstructionsRequest struct {
	QuoteResponse           json.RawMessage `json:"quoteResponse"`
	UserPublicKey           string          `json:"userPublicKey"`
	DestinationTokenAccount string          `json:"destinationTokenAccount,omitempty"`
	WrapAndUnwrapSol        bool            `json:"wrapAndUnwrapSol"`
	UseSharedAccounts       bool            `json:"useSharedAccounts"`
	AsLegacyTransaction     bool            `json:"asLegacyTransaction"`
}

type jsonInstructionAccount struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

type jsonInstruction struct {
	ProgramId string                   `json:"programId"`
	Accounts  []jsonInstructionAccount `json:"accounts"`
	Data      json.RawMessage          `json:"data"`
}

type jsonSwapInstructions struct {
	TokenLedgerInstruction    *jsonInstruction   `json:"tokenLedgerInstruction"`
	ComputeBudgetInstructions []*jsonInstruction `json:"computeBudgetInstructions"`
	SetupInstructions         []*jsonInstruction `json:"setupInstructions"`
	SwapInstruction           *jsonInstruction   `json:"swapInstruction"`
	CleanupInstruction        *jsonInstruction   `json:"cleanupInstruction"`
}
