package lnd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/comit-network/swapharness/internal/logger"
	"github.com/comit-network/swapharness/internal/poll"
	"github.com/comit-network/swapharness/internal/utils"
	"github.com/hashicorp/go-multierror"
	"github.com/lightningnetwork/lnd/lnrpc"
)

const (
	localhost      = "127.0.0.1"
	walletPassword = "password"

	startupTimeout = 60 * time.Second
)

type InstanceConfig struct {
	Name        string `toml:"name"`
	Binary      string `long:"lnd.binary" description:"Path to the lnd binary" toml:"binary"`
	P2pPort     int    `long:"lnd.p2pport" description:"Peer to peer port of the lnd instance" toml:"p2pport"`
	RpcPort     int    `long:"lnd.rpcport" description:"gRPC port of the lnd instance" toml:"rpcport"`
	RestPort    int    `long:"lnd.restport" description:"REST port of the lnd instance" toml:"restport"`
	BitcoindDir string `long:"lnd.bitcoinddir" description:"Data directory of the bitcoind lnd connects to" toml:"bitcoinddir"`
}

// Instance runs an lnd process for one actor on regtest.
type Instance struct {
	Config InstanceConfig
	Dir    string

	poller  *poll.Poller
	log     *logger.Prefixed
	lock    sync.Mutex
	process *exec.Cmd
	exited  chan struct{}
}

func NewInstance(config InstanceConfig, baseDir string, poller *poll.Poller) *Instance {
	if config.Binary == "" {
		config.Binary = "lnd"
	}
	if poller == nil {
		poller = poll.DefaultPoller()
	}
	return &Instance{
		Config: config,
		Dir:    filepath.Join(baseDir, "lnd-"+config.Name),
		poller: poller,
		log:    logger.WithPrefix("lnd-" + config.Name),
	}
}

func (instance *Instance) LogPath() string {
	return filepath.Join(instance.Dir, "logs", "bitcoin", "regtest", "lnd.log")
}

func (instance *Instance) TlsCertPath() string {
	return filepath.Join(instance.Dir, "tls.cert")
}

func (instance *Instance) AdminMacaroonPath() string {
	return filepath.Join(instance.Dir, "data", "chain", "bitcoin", "regtest", "admin.macaroon")
}

func (instance *Instance) GrpcSocket() string {
	return localhost + ":" + strconv.Itoa(instance.Config.RpcPort)
}

func (instance *Instance) LightningSocket() string {
	return localhost + ":" + strconv.Itoa(instance.Config.P2pPort)
}

func (instance *Instance) IsRunning() bool {
	instance.lock.Lock()
	defer instance.lock.Unlock()
	return instance.running()
}

func (instance *Instance) running() bool {
	if instance.process == nil {
		return false
	}
	select {
	case <-instance.exited:
		return false
	default:
		return true
	}
}

func (instance *Instance) configFile() string {
	return fmt.Sprintf(`[Application Options]
debuglevel=debug

; peer to peer port
listen=%[1]s:%[2]d

; gRPC
rpclisten=%[1]s:%[3]d

; REST interface
restlisten=%[1]s:%[4]d

; Do not seek out peers on the network
nobootstrap=true

; Only wait 1 confirmation to open a channel
bitcoin.defaultchanconfs=1

[Bitcoin]

bitcoin.active=true
bitcoin.regtest=true
bitcoin.node=bitcoind

[Bitcoind]

bitcoind.dir=%[5]s
`, localhost, instance.Config.P2pPort, instance.Config.RpcPort, instance.Config.RestPort, instance.Config.BitcoindDir)
}

func (instance *Instance) WriteConfig() error {
	if err := os.MkdirAll(instance.Dir, 0755); err != nil {
		return fmt.Errorf("could not create lnd directory: %w", err)
	}
	return os.WriteFile(filepath.Join(instance.Dir, "lnd.conf"), []byte(instance.configFile()), 0644)
}

// Start returns once lnd has an unlocked wallet, an admin macaroon and has
// caught up with the chain. Starting a running instance is a no-op.
func (instance *Instance) Start(ctx context.Context) error {
	instance.lock.Lock()
	defer instance.lock.Unlock()

	if instance.running() {
		return nil
	}

	if err := instance.WriteConfig(); err != nil {
		return err
	}

	instance.log.Debugf("Using binary %s", instance.Config.Binary)
	cmd := exec.Command(instance.Config.Binary, "--lnddir", instance.Dir)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("could not start lnd: %w", err)
	}
	instance.process = cmd
	instance.exited = make(chan struct{})
	go func(exited chan struct{}) {
		err := cmd.Wait()
		instance.log.Debugf("lnd exited: %v", err)
		close(exited)
	}(instance.exited)
	instance.log.Debugf("Spawned lnd with pid %d", cmd.Process.Pid)

	if err := instance.waitUntilReady(ctx); err != nil {
		_ = instance.stop()
		return err
	}
	return nil
}

func (instance *Instance) waitUntilReady(ctx context.Context) error {
	fileExists := func(path string) error {
		_, err := poll.Until(ctx, instance.poller, func(ctx context.Context) (bool, error) {
			return utils.FileExists(path), nil
		}, func(exists bool) bool { return exists }, startupTimeout)
		return err
	}

	instance.log.Debugf("Waiting for log file %s", instance.LogPath())
	if err := fileExists(instance.LogPath()); err != nil {
		return fmt.Errorf("lnd log file did not appear: %w", err)
	}

	reader := NewLogReader(instance.LogPath(), instance.poller)

	instance.log.Debugf("Waiting for password RPC server")
	if err := reader.WaitForLogMessage(ctx, "RPCS: password RPC server listening", startupTimeout); err != nil {
		return err
	}

	if err := instance.initWallet(ctx); err != nil {
		return err
	}

	instance.log.Debugf("Waiting for unlocked RPC server")
	if err := reader.WaitForLogMessage(ctx, "RPCS: RPC server listening", startupTimeout); err != nil {
		return err
	}

	instance.log.Debugf("Waiting for admin macaroon %s", instance.AdminMacaroonPath())
	if err := fileExists(instance.AdminMacaroonPath()); err != nil {
		return fmt.Errorf("lnd admin macaroon did not appear: %w", err)
	}

	instance.log.Debugf("Waiting for lnd to catch up with blocks")
	if err := reader.WaitForLogMessage(ctx, "LNWL: Done catching up block hashes", startupTimeout); err != nil {
		return err
	}

	instance.log.Infof("lnd is ready at %s", instance.GrpcSocket())
	return nil
}

func (instance *Instance) initWallet(ctx context.Context) error {
	con, err := dial(localhost, instance.Config.RpcPort, instance.TlsCertPath(), false)
	if err != nil {
		return err
	}
	defer con.Close()

	unlocker := lnrpc.NewWalletUnlockerClient(con)
	seed, err := unlocker.GenSeed(ctx, &lnrpc.GenSeedRequest{})
	if err != nil {
		return fmt.Errorf("could not generate lnd seed: %w", err)
	}
	_, err = unlocker.InitWallet(ctx, &lnrpc.InitWalletRequest{
		WalletPassword:     []byte(walletPassword),
		CipherSeedMnemonic: seed.CipherSeedMnemonic,
	})
	if err != nil {
		return fmt.Errorf("could not initialize lnd wallet: %w", err)
	}
	instance.log.Debugf("Wallet initialized")
	return nil
}

// Client returns an lnd client for the running instance, which still has to connect.
func (instance *Instance) Client() *LND {
	return &LND{
		Host:        localhost,
		Port:        instance.Config.RpcPort,
		Macaroon:    instance.AdminMacaroonPath(),
		Certificate: instance.TlsCertPath(),
	}
}

func (instance *Instance) Stop() error {
	instance.lock.Lock()
	defer instance.lock.Unlock()
	return instance.stop()
}

func (instance *Instance) stop() error {
	if !instance.running() {
		instance.process = nil
		return nil
	}
	instance.log.Debugf("Stopping lnd")
	if err := instance.process.Process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("could not stop lnd: %w", err)
	}
	select {
	case <-instance.exited:
	case <-time.After(10 * time.Second):
		_ = instance.process.Process.Kill()
		<-instance.exited
	}
	instance.process = nil
	return nil
}

// StopAll stops every instance, even if stopping one of them fails.
func StopAll(instances ...*Instance) error {
	var result *multierror.Error
	for _, instance := range instances {
		if err := instance.Stop(); err != nil {
			result = multierror.Append(result, fmt.Errorf("lnd-%s: %w", instance.Config.Name, err))
		}
	}
	return result.ErrorOrNil()
}
