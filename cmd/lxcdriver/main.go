package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"lxcdriver/internal/common"
	"lxcdriver/internal/driver"
	"lxcdriver/internal/events"
	"lxcdriver/internal/executor"
	"lxcdriver/internal/lxc"
	"lxcdriver/internal/manager"
	"lxcdriver/internal/server"

	"go.uber.org/zap"
)

const usage = `usage: lxcdriver [flags] <command> [args]

commands:
  serve                       run the HTTP control API
  version                     print the lxc tools version
  list                        list containers
  create   -template PATH [-name NAME] [-o key=value ...]
  start    -name NAME [-folder HOST:GUEST ...] [-s key=value ...]
  halt     -name NAME
  destroy  -name NAME
  state    -name NAME
  ip       -name NAME
  compress -name NAME
`

// multiFlag 可重复的字符串参数
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func main() {
	var (
		configPath  = flag.String("config", os.Getenv("LXCDRIVER_CONFIG"), "Path to YAML config file")
		development = flag.Bool("dev", false, "Enable development mode")
	)
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	config, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *development {
		config.Logging.Development = true
	}

	// 初始化日志系统
	if err := common.InitLoggerWithConfig(config.Logging); err != nil {
		panic(err)
	}
	defer common.Sync()
	logger := common.GetLogger()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exec := executor.NewProcessExecutor(executor.Config{
		SudoPath: config.Driver.SudoPath,
		UseSudo:  config.Driver.UseSudo,
	})
	publisher := events.NewPublisher(config.Events)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("Failed to close event publisher", zap.Error(err))
		}
	}()
	metrics := common.NewMetrics()
	cm := manager.NewManager(exec, driver.OptionsFromConfig(config.Driver),
		manager.WithPublisher(publisher),
		manager.WithMetrics(metrics))

	command, args := flag.Arg(0), flag.Args()[1:]
	if command == "serve" {
		if err := serve(ctx, cm, metrics, config.Server, logger); err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
			os.Exit(1)
		}
		logger.Info("lxcdriver exited gracefully")
		return
	}

	result, err := runCommand(ctx, cm, command, args)
	if err != nil {
		logger.Error("Command failed", zap.String("command", command), zap.Error(err))
		common.Sync()
		os.Exit(1)
	}
	if result != nil {
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
	}
}

func loadConfig(path string) (*common.Config, error) {
	if path == "" {
		return common.GetDefaultConfig(), nil
	}
	return common.LoadConfig(path)
}

func serve(ctx context.Context, cm *manager.Manager, metrics *common.Metrics, config common.ServerConfig, logger *zap.Logger) error {
	if version, err := cm.Version(ctx); err != nil {
		logger.Warn("Failed to detect lxc version", zap.Error(err))
	} else {
		logger.Info("Detected lxc tools", zap.String("version", version))
	}

	srv := server.NewHTTPServer(cm, metrics.Handler(), config, logger)

	// 优雅关闭处理
	go func() {
		<-ctx.Done()
		logger.Info("Received shutdown signal")
		if err := srv.Stop(); err != nil {
			logger.Error("Error stopping HTTP server", zap.Error(err))
		}
	}()

	if err := srv.Start(config.Address, config.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// runCommand 执行一次性子命令，返回需要输出的结果
func runCommand(ctx context.Context, cm *manager.Manager, command string, args []string) (interface{}, error) {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	var (
		name     = fs.String("name", "", "Container name")
		template = fs.String("template", "", "Path to the lxc template script")
		options  multiFlag
		custom   multiFlag
		folders  multiFlag
	)
	fs.Var(&options, "o", "Template option key=value (repeatable)")
	fs.Var(&custom, "s", "Start customization key=value (repeatable)")
	fs.Var(&folders, "folder", "Shared folder HOST:GUEST (repeatable)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	requireName := func() error {
		if *name == "" {
			return common.NewValidationError("name", "cannot be empty", *name)
		}
		return nil
	}

	switch command {
	case "version":
		version, err := cm.Version(ctx)
		return map[string]string{"version": version}, err
	case "list":
		return cm.List(ctx)
	case "create":
		if *template == "" {
			return nil, common.NewValidationError("template", "cannot be empty", *template)
		}
		opts, err := parsePairs(options)
		if err != nil {
			return nil, err
		}
		created, err := cm.Create(ctx, *name, *template, opts)
		return map[string]string{"name": created}, err
	}

	if err := requireName(); err != nil {
		return nil, err
	}

	switch command {
	case "start":
		shared, err := parseFolders(folders)
		if err != nil {
			return nil, err
		}
		customizations, err := parseCustomizations(custom)
		if err != nil {
			return nil, err
		}
		// 共享目录配置项只保存在本进程内，必须在同一次调用中启动
		if len(shared) > 0 {
			if err := cm.ShareFolders(ctx, *name, shared); err != nil {
				return nil, err
			}
		}
		return nil, cm.Start(ctx, *name, customizations)
	case "halt":
		return nil, cm.Halt(ctx, *name)
	case "destroy":
		return nil, cm.Destroy(ctx, *name)
	case "state":
		state, err := cm.State(ctx, *name)
		return map[string]lxc.State{"state": state}, err
	case "ip":
		ip, err := cm.AssignedIP(ctx, *name)
		return map[string]string{"ip": ip}, err
	case "compress":
		path, err := cm.CompressRootfs(ctx, *name)
		return map[string]string{"path": path}, err
	}
	return nil, fmt.Errorf("unknown command %q", command)
}

func parsePairs(values []string) (map[string]string, error) {
	pairs := make(map[string]string, len(values))
	for _, v := range values {
		key, value, ok := strings.Cut(v, "=")
		if !ok || key == "" {
			return nil, common.NewValidationError("option", "expected key=value", v)
		}
		pairs[key] = value
	}
	return pairs, nil
}

// parseCustomizations 按命令行顺序解析启动配置项
func parseCustomizations(values []string) (lxc.Customizations, error) {
	var customizations lxc.Customizations
	for _, v := range values {
		key, value, ok := strings.Cut(v, "=")
		if !ok || key == "" {
			return nil, common.NewValidationError("customization", "expected key=value", v)
		}
		customizations.Add(lxc.Customization{Key: key, Value: value})
	}
	return customizations, nil
}

func parseFolders(values []string) ([]driver.Folder, error) {
	folders := make([]driver.Folder, 0, len(values))
	for _, v := range values {
		host, guest, ok := strings.Cut(v, ":")
		if !ok || host == "" || guest == "" {
			return nil, common.NewValidationError("folder", "expected HOST:GUEST", v)
		}
		folders = append(folders, driver.Folder{HostPath: host, GuestPath: guest})
	}
	return folders, nil
}
