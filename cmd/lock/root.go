package lock

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/creastat/sessionlock"
	"github.com/creastat/sessionlock/cmd/util"
	"github.com/creastat/sessionlock/session"
)

var (
	provider *sessionlock.Provider

	createTimeout  int
	updateTimeout  int
	releaseTimeout int
	deleteItems    []string
	workers        int
	printMetrics   bool

	// LockCommands represents the session lock command group
	LockCommands = &cobra.Command{
		Use:   "lock",
		Short: "Perform session lock operations",
		Long: util.WrapString(`Read, lock, update and release session records in the configured store.
With --store memory the records only live for the duration of a single command.`),
		PersistentPreRunE:  setupProvider,
		PersistentPostRunE: closeProvider,
	}

	createCmd = &cobra.Command{
		Use:   "create [sessionID]",
		Short: "Create an uninitialized session",
		Long:  "Create an unlocked session without items. A random session id is generated when none is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCreate,
	}

	getCmd = &cobra.Command{
		Use:   "get [sessionID]",
		Short: "Read a session without locking it",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}

	acquireCmd = &cobra.Command{
		Use:   "acquire [sessionID]",
		Short: "Read a session and take its lock",
		Long:  "Read a session and take its lock. The printed lock id is needed to release, update or remove the session.",
		Args:  cobra.ExactArgs(1),
		RunE:  runAcquire,
	}

	updateCmd = &cobra.Command{
		Use:   "update [sessionID] [name=value]...",
		Short: "Lock a session, change its items and release it",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runUpdate,
	}

	releaseCmd = &cobra.Command{
		Use:   "release [sessionID] [lockID]",
		Short: "Release a session lock without changing its items",
		Args:  cobra.ExactArgs(2),
		RunE:  runRelease,
	}

	touchCmd = &cobra.Command{
		Use:   "touch [sessionID]",
		Short: "Reset the timeout of a session",
		Args:  cobra.ExactArgs(1),
		RunE:  runTouch,
	}

	removeCmd = &cobra.Command{
		Use:   "remove [sessionID] [lockID]",
		Short: "Remove a session held as lockID",
		Args:  cobra.ExactArgs(2),
		RunE:  runRemove,
	}

	registerCmd = &cobra.Command{
		Use:   "register",
		Short: "Install the server-side session module",
		Long:  "Install the server-side session module if the store does not have it yet. Implies --use-procedures.",
		Args:  cobra.NoArgs,
		RunE:  runRegister,
	}

	contendCmd = &cobra.Command{
		Use:   "contend [sessionID]",
		Short: "Let concurrent workers race for the lock of one session",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runContend,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	LockCommands.AddCommand(createCmd)
	LockCommands.AddCommand(getCmd)
	LockCommands.AddCommand(acquireCmd)
	LockCommands.AddCommand(updateCmd)
	LockCommands.AddCommand(releaseCmd)
	LockCommands.AddCommand(touchCmd)
	LockCommands.AddCommand(removeCmd)
	LockCommands.AddCommand(registerCmd)
	LockCommands.AddCommand(contendCmd)

	util.SetupStoreFlags(LockCommands)

	createCmd.Flags().IntVar(&createTimeout, "timeout", 20, "Session timeout in minutes")
	updateCmd.Flags().IntVar(&updateTimeout, "timeout", 20, "Session timeout in minutes")
	updateCmd.Flags().StringSliceVar(&deleteItems, "delete", nil, util.WrapString("Names of items to delete"))
	releaseCmd.Flags().IntVar(&releaseTimeout, "timeout", 0, "Session timeout in minutes (0 uses --session-timeout)")
	contendCmd.Flags().IntVar(&workers, "workers", 8, "Number of concurrent workers")
	contendCmd.Flags().BoolVar(&printMetrics, "metrics", false, "Print the operation counters in Prometheus format")
}

// setupProvider opens the provider from the bound configuration
func setupProvider(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	config := util.GetConfig()
	if cmd == registerCmd {
		config.UseProcedures = true
	}
	logger := util.NewLogger(config.LogLevel)

	var err error
	provider, err = sessionlock.Open(cmd.Context(), config, sessionlock.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to open session store: %v", err)
	}
	return nil
}

func closeProvider(_ *cobra.Command, _ []string) error {
	if provider == nil {
		return nil
	}
	return provider.Close()
}

func parseLockID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid lock id %q: %v", s, err)
	}
	return id, nil
}

func printItems(items *session.Items) {
	if items == nil {
		return
	}
	for _, name := range items.Names() {
		v, _ := items.Get(name)
		fmt.Printf("  %s=%v\n", name, v)
	}
}

func lockAge(age time.Duration) string {
	return humanize.RelTime(time.Now().Add(-age), time.Now(), "ago", "from now")
}

func runCreate(cmd *cobra.Command, args []string) error {
	id := sessionlock.NewSessionID()
	if len(args) > 0 {
		id = args[0]
	}
	if err := provider.CreateUninitializedItem(cmd.Context(), id, createTimeout); err != nil {
		return fmt.Errorf("failed to create session: %v", err)
	}
	fmt.Printf("created=true, session=%s\n", id)
	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	res, err := provider.GetItem(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to read session: %v", err)
	}
	switch {
	case res.Locked:
		fmt.Printf("state=locked, lockId=%d, locked %s\n", *res.LockID, lockAge(res.LockAge))
	case res.Data == nil:
		fmt.Println("state=not-found")
	default:
		fmt.Printf("state=unlocked, timeout=%dm, items=%d, initialize=%v\n",
			res.Data.Timeout, res.Data.Items.Len(), res.Actions == sessionlock.ActionInitializeItem)
		printItems(res.Data.Items)
	}
	return nil
}

func runAcquire(cmd *cobra.Command, args []string) error {
	res, err := provider.GetItemExclusive(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to acquire session: %v", err)
	}
	switch {
	case res.Locked:
		fmt.Printf("acquired=false, lockId=%d, locked %s\n", *res.LockID, lockAge(res.LockAge))
	case res.Data == nil:
		fmt.Println("acquired=false, state=not-found")
	default:
		fmt.Printf("acquired=true, lockId=%d, items=%d\n", *res.LockID, res.Data.Items.Len())
		printItems(res.Data.Items)
	}
	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]

	res, err := provider.GetItemExclusive(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to acquire session: %v", err)
	}
	if res.Locked {
		fmt.Printf("updated=false, lockId=%d, locked %s\n", *res.LockID, lockAge(res.LockAge))
		return nil
	}

	var items *session.Items
	if res.Data != nil {
		items = res.Data.Items
	} else {
		items = session.NewItems()
	}
	for _, pair := range args[1:] {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return fmt.Errorf("invalid item %q, expected name=value", pair)
		}
		items.Set(name, value)
	}
	for _, name := range deleteItems {
		items.Delete(name)
	}

	if res.Data == nil {
		// nothing was locked, write a fresh record
		if err := provider.Store().Write(ctx, id, updateTimeout*60, items); err != nil {
			return fmt.Errorf("failed to write session: %v", err)
		}
		fmt.Printf("updated=true, created=true, items=%d\n", items.Len())
		return nil
	}

	applied, err := provider.Store().UpdateAndRelease(ctx, id, *res.LockID, updateTimeout*60, items)
	if err != nil {
		return fmt.Errorf("failed to update session: %v", err)
	}
	fmt.Printf("updated=%v, items=%d\n", applied, items.Len())
	return nil
}

func runRelease(cmd *cobra.Command, args []string) error {
	lockID, err := parseLockID(args[1])
	if err != nil {
		return err
	}
	ttl := releaseTimeout * 60
	if ttl <= 0 {
		ttl = provider.Config().SessionTimeout
	}
	released, err := provider.Store().ReleaseOnly(cmd.Context(), args[0], lockID, ttl)
	if err != nil {
		return fmt.Errorf("failed to release session: %v", err)
	}
	fmt.Printf("released=%v\n", released)
	return nil
}

func runTouch(cmd *cobra.Command, args []string) error {
	applied, err := provider.Store().ResetTimeout(cmd.Context(), args[0], provider.Config().SessionTimeout)
	if err != nil {
		return fmt.Errorf("failed to reset session timeout: %v", err)
	}
	fmt.Printf("touched=%v, timeout=%ds\n", applied, provider.Config().SessionTimeout)
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	lockID, err := parseLockID(args[1])
	if err != nil {
		return err
	}
	removed, err := provider.Store().Remove(cmd.Context(), args[0], lockID)
	if err != nil {
		return fmt.Errorf("failed to remove session: %v", err)
	}
	fmt.Printf("removed=%v\n", removed)
	return nil
}

func runRegister(_ *cobra.Command, _ []string) error {
	// Open already ran the registrar
	fmt.Printf("registered=true, strategy=%s\n", provider.Store().Strategy())
	return nil
}

func runContend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := sessionlock.NewSessionID()
	if len(args) > 0 {
		id = args[0]
	}
	if workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", workers)
	}
	if err := provider.CreateUninitializedItem(ctx, id, 20); err != nil {
		return fmt.Errorf("failed to create session: %v", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  []int64
		failures int
	)
	start := time.Now()
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := provider.GetItemExclusive(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				failures++
			case !res.Locked && res.Data != nil:
				winners = append(winners, *res.LockID)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	sort.Slice(winners, func(i, j int) bool { return winners[i] < winners[j] })
	fmt.Printf("session=%s, workers=%d, winners=%d, losers=%d, errors=%d, elapsed=%s\n",
		id, workers, len(winners), workers-len(winners)-failures, failures, elapsed)
	for _, lockID := range winners {
		fmt.Printf("  lockId=%s\n", humanize.Comma(lockID))
	}

	if printMetrics {
		metrics.WritePrometheus(cmd.OutOrStdout(), false)
	}
	return nil
}
