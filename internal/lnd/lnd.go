package lnd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/comit-network/swapharness/internal/ledger"
	"github.com/comit-network/swapharness/internal/logger"
	"github.com/comit-network/swapharness/internal/utils"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/invoicesrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/routing/route"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"gopkg.in/macaroon.v2"
)

const MinVersion = "0.10.0"

const paymentTimeout = 60

// Faucet pays out on chain bitcoin, usually the bitcoind wallet of the same actor.
type Faucet interface {
	SendToAddress(ctx context.Context, address string, amount btcutil.Amount) (*chainhash.Hash, error)
}

var ErrNotConnected = errors.New("lnd is not connected")

type LND struct {
	Host        string `long:"lnd.host" description:"gRPC host of the LND node"`
	Port        int    `long:"lnd.port" description:"gRPC port of the LND node"`
	Macaroon    string `long:"lnd.macaroon" description:"Path to a macaroon file of the LND node or the macaroon encoded in hex"`
	Certificate string `long:"lnd.certificate" description:"Path to a certificate file of the LND node"`
	Insecure    bool   `long:"lnd.insecure" description:"Connect to lnd without TLS"`

	Faucet Faucet `toml:"-" no-flag:"true"`

	ctx      context.Context
	metadata metadata.MD
	conn     *grpc.ClientConn
	client   lnrpc.LightningClient
	router   routerrpc.RouterClient
	invoices invoicesrpc.InvoicesClient

	identity string
	network  string
}

func (lnd *LND) withParentCtx(ctx context.Context) context.Context {
	return metadata.NewOutgoingContext(ctx, lnd.metadata)
}

func (lnd *LND) Ready() bool {
	return lnd.client != nil
}

func (lnd *LND) Disconnect() error {
	if lnd.conn == nil {
		return nil
	}
	err := lnd.conn.Close()
	lnd.conn = nil
	lnd.client = nil
	return err
}

// ReadMacaroon accepts a hex encoded macaroon or the path to a macaroon file
// and makes sure it actually is a macaroon.
func ReadMacaroon(value string) ([]byte, error) {
	raw, err := hex.DecodeString(value)
	if err != nil {
		raw, err = os.ReadFile(value)
		if err != nil {
			return nil, fmt.Errorf("could not read LND macaroon: %w", err)
		}
	}

	var parsed macaroon.Macaroon
	if err := parsed.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("invalid LND macaroon: %w", err)
	}
	return raw, nil
}

func dial(host string, port int, certificate string, useInsecure bool) (*grpc.ClientConn, error) {
	creds := insecure.NewCredentials()
	if !useInsecure {
		cert, err := filepath.EvalSymlinks(certificate)
		if err != nil {
			return nil, fmt.Errorf("could not eval symlinks: %w", err)
		}
		creds, err = credentials.NewClientTLSFromFile(cert, "")
		if err != nil {
			return nil, fmt.Errorf("could not read LND certificate: %w", err)
		}
	}
	con, err := grpc.Dial(host+":"+strconv.Itoa(port), grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("could not create gRPC client: %w", err)
	}
	return con, nil
}

// Connect dials lnd, checks its version and caches its identity and network.
func (lnd *LND) Connect(ctx context.Context) error {
	macaroonBytes, err := ReadMacaroon(lnd.Macaroon)
	if err != nil {
		return err
	}
	lnd.metadata = metadata.Pairs("macaroon", hex.EncodeToString(macaroonBytes))
	lnd.ctx = lnd.withParentCtx(context.Background())

	con, err := dial(lnd.Host, lnd.Port, lnd.Certificate, lnd.Insecure)
	if err != nil {
		return err
	}
	lnd.conn = con
	lnd.client = lnrpc.NewLightningClient(con)
	lnd.router = routerrpc.NewRouterClient(con)
	lnd.invoices = invoicesrpc.NewInvoicesClient(con)

	info, err := lnd.client.GetInfo(lnd.withParentCtx(ctx), &lnrpc.GetInfoRequest{})
	if err != nil {
		return fmt.Errorf("could not get LND info: %w", err)
	}
	if err := utils.CheckVersion("LND", info.Version, MinVersion); err != nil {
		return err
	}
	if len(info.Chains) > 0 {
		lnd.network = info.Chains[0].Network
	}
	lnd.identity = info.IdentityPubkey

	logger.Infof("Connected to LND %s (%s) on %s", lnd.identity, info.Version, lnd.network)
	return nil
}

func (lnd *LND) GetInfo(ctx context.Context) (*lnrpc.GetInfoResponse, error) {
	if !lnd.Ready() {
		return nil, ErrNotConnected
	}
	return lnd.client.GetInfo(lnd.withParentCtx(ctx), &lnrpc.GetInfoRequest{})
}

func (lnd *LND) Identity() string {
	return lnd.identity
}

func (lnd *LND) Network() string {
	return lnd.network
}

func (lnd *LND) NewAddress(ctx context.Context) (string, error) {
	response, err := lnd.client.NewAddress(lnd.withParentCtx(ctx), &lnrpc.NewAddressRequest{
		Type: lnrpc.AddressType_WITNESS_PUBKEY_HASH,
	})
	if err != nil {
		return "", err
	}
	return response.Address, nil
}

// Fund pays amount on chain into the lnd wallet, from where it can be used
// to open channels.
func (lnd *LND) Fund(ctx context.Context, asset ledger.Asset, amount *big.Int) error {
	if asset.Ledger != ledger.Lightning && asset != ledger.AssetBitcoin {
		return fmt.Errorf("lnd can not hold %s", asset)
	}
	if lnd.Faucet == nil {
		return errors.New("lnd has no faucet to fund from")
	}
	address, err := lnd.NewAddress(ctx)
	if err != nil {
		return err
	}
	txId, err := lnd.Faucet.SendToAddress(ctx, address, btcutil.Amount(amount.Int64()))
	if err != nil {
		return fmt.Errorf("could not fund lnd: %w", err)
	}
	logger.Debugf("Funded lnd %s with %d sat in %s", lnd.identity, amount.Int64(), txId)
	return nil
}

// GetBalanceByAsset returns the local channel balance for lightning bitcoin
// and the confirmed wallet balance for on chain bitcoin.
func (lnd *LND) GetBalanceByAsset(ctx context.Context, asset ledger.Asset) (*big.Int, error) {
	switch asset {
	case ledger.AssetLightningBitcoin:
		response, err := lnd.client.ChannelBalance(lnd.withParentCtx(ctx), &lnrpc.ChannelBalanceRequest{})
		if err != nil {
			return nil, err
		}
		if response.LocalBalance == nil {
			return new(big.Int), nil
		}
		return new(big.Int).SetUint64(response.LocalBalance.Sat), nil
	case ledger.AssetBitcoin:
		response, err := lnd.client.WalletBalance(lnd.withParentCtx(ctx), &lnrpc.WalletBalanceRequest{})
		if err != nil {
			return nil, err
		}
		return big.NewInt(response.ConfirmedBalance), nil
	default:
		return nil, fmt.Errorf("lnd can not hold %s", asset)
	}
}

func (lnd *LND) GetBlockchainTime(ctx context.Context) (time.Time, error) {
	info, err := lnd.GetInfo(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(info.BestHeaderTimestamp, 0), nil
}

// SendPayment pays hash to destination and returns as soon as lnd reports
// the payment in flight.
func (lnd *LND) SendPayment(ctx context.Context, destination route.Vertex, amount btcutil.Amount, hash lntypes.Hash, finalCltvDelta uint32) error {
	// the stream must outlive ctx since the payment only completes once the
	// receiver settles
	client, err := lnd.router.SendPaymentV2(lnd.ctx, &routerrpc.SendPaymentRequest{
		Dest:           destination[:],
		Amt:            int64(amount),
		PaymentHash:    hash[:],
		FinalCltvDelta: int32(finalCltvDelta),
		TimeoutSeconds: paymentTimeout,
		FeeLimitSat:    int64(amount),
	})
	if err != nil {
		return err
	}

	for {
		event, err := client.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("payment stream closed before the payment was in flight")
			}
			return err
		}

		switch event.Status {
		case lnrpc.Payment_IN_FLIGHT, lnrpc.Payment_SUCCEEDED:
			logger.Debugf("Payment %s is %s", hash, event.Status)
			return nil
		case lnrpc.Payment_FAILED:
			return errors.New(event.FailureReason.String())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (lnd *LND) AddHoldInvoice(ctx context.Context, amount btcutil.Amount, hash lntypes.Hash, expiry uint32, cltvExpiry uint32) (string, error) {
	response, err := lnd.invoices.AddHoldInvoice(lnd.withParentCtx(ctx), &invoicesrpc.AddHoldInvoiceRequest{
		Hash:       hash[:],
		Value:      int64(amount),
		Expiry:     int64(expiry),
		CltvExpiry: uint64(cltvExpiry),
	})
	if err != nil {
		return "", err
	}
	return response.PaymentRequest, nil
}

func (lnd *LND) SettleInvoice(ctx context.Context, preimage lntypes.Preimage) error {
	_, err := lnd.invoices.SettleInvoice(lnd.withParentCtx(ctx), &invoicesrpc.SettleInvoiceMsg{
		Preimage: preimage[:],
	})
	return err
}

func (lnd *LND) LookupInvoice(ctx context.Context, hash lntypes.Hash) (*lnrpc.Invoice, error) {
	return lnd.client.LookupInvoice(lnd.withParentCtx(ctx), &lnrpc.PaymentHash{
		RHash: hash[:],
	})
}

var _ ledger.LightningWallet = &LND{}
