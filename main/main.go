package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"remoting"
	"remoting/codec"
	"remoting/main/logfmt"
)

func init() {
	//设置output,默认为stderr,可以为任何io.Writer，比如文件*os.File
	logrus.SetOutput(os.Stdout)
	//设置最低loglevel
	logrus.SetLevel(logrus.InfoLevel)
	logrus.SetReportCaller(true)
	logrus.SetFormatter(&logfmt.MyFormatter{})
}

var configFile string

// loadConfig 读取配置文件，命令行参数覆盖文件中的值
func loadConfig(cmd *cobra.Command) (*Config, error) {
	cfg, err := readConfig(configFile)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Listen.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Listen.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("codec") {
		codecType, _ := flags.GetString("codec")
		cfg.Codec = codec.Type(codecType)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	level, _ := logrus.ParseLevel(cfg.Log.Level)
	logrus.SetLevel(level)
	return cfg, nil
}

func serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serve the demo calculator until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			server, err := remoting.NewServer(cfg.Listen.Port, calculatorContract, newCalculator(), &remoting.ServerOption{Host: cfg.Listen.Host})
			if err != nil {
				return err
			}
			if err := server.Start(); err != nil {
				return err
			}
			if cfg.Debug != "" {
				go func() {
					logrus.Infof("debug page on http://%s%s", cfg.Debug, remoting.DebugPath)
					if err := http.ListenAndServe(cfg.Debug, server.DebugHandler()); err != nil {
						logrus.Errorf("debug server: %v", err)
					}
				}()
			}

			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
			select {
			case sig := <-interrupt:
				logrus.Infof("received %s", sig)
			case <-server.Done():
			}
			return server.Stop()
		},
	}
	return cmd
}

func callCommand() *cobra.Command {
	var accumulator string
	cmd := &cobra.Command{
		Use:   "call <a> <b>",
		Short: "add two numbers on a running server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid number %q", args[0])
			}
			b, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid number %q", args[1])
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			host := cfg.Listen.Host
			if host == "" || host == "0.0.0.0" {
				host = "127.0.0.1"
			}
			client, err := remoting.NewClient[Calculator](host, cfg.Listen.Port, calculatorContract, &remoting.Option{CodecType: cfg.Codec})
			if err != nil {
				return err
			}
			return client.WithSession(func(calc Calculator) error {
				sum, err := calc.Sum(Args{Num1: a, Num2: b})
				if err != nil {
					return err
				}
				logrus.Infof("Sum(%d, %d) = %d", a, b, sum)
				if accumulator == "" {
					return nil
				}
				acc, err := calc.Accumulator(accumulator)
				if err != nil {
					return err
				}
				total, err := acc.Add(sum)
				if err != nil {
					return err
				}
				logrus.Infof("accumulator %s total = %d", accumulator, total)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&accumulator, "accumulator", "a", "", "add the sum to the named accumulator on the server")
	return cmd
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "remoting",
		Short:         "demo server and client of the remoting runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to config.yaml")
	root.PersistentFlags().String("host", "", "listen or server host")
	root.PersistentFlags().Int("port", 0, "listen or server port")
	root.PersistentFlags().String("codec", "", "line codec, application/gob or application/json")
	root.AddCommand(serveCommand(), callCommand())
	return root
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		logrus.Fatal(err)
	}
}
