package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/alexxcrz/IXORA-sub001/internal/config"
	"github.com/alexxcrz/IXORA-sub001/internal/importer"
	"github.com/alexxcrz/IXORA-sub001/internal/logging"
	"github.com/alexxcrz/IXORA-sub001/internal/model"
	"github.com/alexxcrz/IXORA-sub001/internal/parser"
	"github.com/alexxcrz/IXORA-sub001/internal/server"
)

var (
	port        = flag.Int("port", 0, "服务端口 (config.toml 优先；仅当未显式配置 port 时生效)")
	devMode     = flag.Bool("dev", false, "开发模式")
	dataDir     = flag.String("dataDir", "", "数据目录 (覆盖配置文件)")
	file        = flag.String("file", "", "直接导入指定文件后退出 (.csv/.xls/.xlsx)")
	mode        = flag.String("mode", "", "导入模式: crear | actualizar | ambos")
	inventory   = flag.Int64("inventory", 0, "目标库存 ID")
	force       = flag.Bool("force", false, "存在校验警告时仍然导入")
	writeConfig = flag.Bool("write-config", false, "将当前生效的配置写入 config.toml 后退出")
)

func main() {
	flag.Parse()

	fmt.Println("==========================================")
	fmt.Println("  IXORA - 库存表格导入服务")
	fmt.Println("==========================================")

	// 加载配置
	cfg, info, err := config.LoadConfigWithInfo()
	if err != nil {
		log.Printf("加载配置失败，使用默认配置: %v", err)
		cfg = config.DefaultConfig()
		info = config.LoadConfigInfo{}
	}

	// 命令行参数覆盖配置
	if *port > 0 && !info.PortSpecified {
		cfg.Server.Port = *port
	}
	if *devMode {
		cfg.Server.DevMode = true
	}
	if *dataDir != "" {
		cfg.Data.DataDir = *dataDir
	}
	if *mode != "" {
		m, err := model.ParseImportMode(*mode)
		if err != nil {
			log.Fatalf("导入模式无效: %v", err)
		}
		cfg.Import.DefaultMode = string(m)
	}
	if *inventory > 0 {
		cfg.Backend.DefaultInventoryID = *inventory
	}

	if *writeConfig {
		if err := config.SaveConfig(cfg); err != nil {
			log.Fatalf("写入配置失败: %v", err)
		}
		fmt.Printf("配置已写入: %s\n", config.DefaultConfigPath())
		return
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Server.DevMode)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// 确保数据目录存在
	dir, err := config.EnsureDataDir(cfg)
	if err != nil {
		log.Printf("创建数据目录失败: %v", err)
	} else {
		fmt.Printf("数据目录: %s\n", dir)
	}
	fmt.Printf("库存后端: %s\n", cfg.Backend.BaseURL)

	if *file != "" {
		code := runImport(cfg, logger, *file)
		_ = logger.Sync()
		os.Exit(code)
	}

	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		log.Fatalf("服务初始化失败: %v", err)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)

	// 启动服务器
	go func() {
		fmt.Printf("服务启动中，监听端口 %d ...\n", cfg.Server.Port)
		if err := srv.Run(addr); err != nil {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	fmt.Println("\n按 Ctrl+C 停止服务...")

	// 等待信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\n正在关闭服务...")
	if err := srv.Close(); err != nil {
		log.Printf("关闭失败: %v", err)
	}
}

// runImport 命令行一次性导入，返回进程退出码
func runImport(cfg *config.AppConfig, logger *zap.Logger, path string) int {
	comps, err := server.BuildComponents(cfg, logger)
	if err != nil {
		fmt.Printf("初始化失败: %v\n", err)
		return 1
	}
	defer comps.Close()

	f, err := os.Open(path)
	if err != nil {
		fmt.Printf("打开文件失败: %v\n", err)
		return 1
	}
	defer f.Close()

	h := sha256.New()
	table, err := parser.Parse(filepath.Base(path), io.TeeReader(f, h))
	if err != nil {
		switch {
		case errors.Is(err, parser.ErrUnsupportedFormat):
			fmt.Println("Solo se permiten archivos CSV o Excel (.xls, .xlsx)")
		case errors.Is(err, parser.ErrEmptyFile):
			fmt.Println("El archivo está vacío o no tiene datos válidos")
		default:
			fmt.Printf("Error al procesar el archivo: %v\n", err)
		}
		return 1
	}
	size, _ := f.Seek(0, io.SeekCurrent)

	mapping, unmapped := comps.Classifier.Classify(table.Headers)
	fmt.Printf("文件: %s (%s, %d 行)\n", filepath.Base(path), table.Format, len(table.Rows))
	for _, e := range mapping.Entries() {
		if e.Field != model.FieldUnmapped {
			fmt.Printf("  %-30s -> %s\n", e.Header, e.Field.Label())
		}
	}
	if len(unmapped) > 0 {
		fmt.Printf("  未映射列: %v\n", unmapped)
	}

	for _, w := range table.Warnings {
		fmt.Println("  " + w)
	}

	warnings := parser.Validate(table.Rows, mapping)
	for _, w := range warnings {
		fmt.Println("  " + w.String())
	}
	if len(warnings) > 0 && !*force {
		fmt.Printf("存在 %d 条校验警告，使用 -force 继续导入\n", len(warnings))
		return 2
	}

	prefs, err := comps.Store.GetImportPreferences(comps.Defaults)
	if err != nil {
		prefs = comps.Defaults
	}
	// 命令行显式参数优先于上次偏好
	if *mode != "" {
		prefs.Mode, _ = model.ParseImportMode(*mode)
	}
	if *inventory > 0 {
		prefs.InventoryID = *inventory
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events := comps.Coordinator.Import(ctx, importer.ImportOptions{
		Filename:    filepath.Base(path),
		FileSize:    size,
		FileHash:    hex.EncodeToString(h.Sum(nil)),
		Rows:        table.Rows,
		Mapping:     mapping,
		Mode:        prefs.Mode,
		InventoryID: prefs.InventoryID,
	})

	exit := 0
	for evt := range events {
		switch evt.Type {
		case "progress":
			if snap, ok := evt.Data.(model.ProgressSnapshot); ok && !snap.Done {
				fmt.Printf("\r  %d / %d", snap.Processed, snap.Total)
			}
		case "error":
			fmt.Printf("\n导入失败: %s\n", evt.Message)
			exit = 1
		case "done":
			fmt.Printf("\n%s\n", evt.Message)
			if res, ok := evt.Data.(*importer.ImportResult); ok && res.Run.State == model.RunCancelled {
				fmt.Println("导入已取消")
				exit = 130
			}
		default:
			fmt.Println(evt.Message)
		}
	}
	return exit
}
