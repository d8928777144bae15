package serve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/dStream/cmd/util"
	"github.com/ValentinKolb/dStream/stream/common"
	"github.com/ValentinKolb/dStream/stream/monitor"
	"github.com/ValentinKolb/dStream/stream/pipeline"
	"github.com/ValentinKolb/dStream/stream/sink"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = common.DefaultPipelineConfig()
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Receive a frame stream",
		Long:    `Start a stream pipeline with the specified configuration. The latest frame is kept as parameter (see --param) and can be fetched from the monitor endpoint. The configuration can be set via command line flags or environment variables. The format of the environment variables is DSTREAM_<flag> (e.g. DSTREAM_STOP_BYTE=e)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, common.DefaultEndpoint, cmdUtil.WrapString("The address to listen on (host:port for tcp, a socket path for unix)"))

	key = "name"
	ServeCmd.PersistentFlags().String(key, "stream", cmdUtil.WrapString("Name of the pipeline in logs and metrics"))

	key = "param"
	ServeCmd.PersistentFlags().String(key, "datas", cmdUtil.WrapString("Name of the parameter the latest frame is stored as"))

	key = "read-buffer"
	ServeCmd.PersistentFlags().Int(key, common.DefaultReadBufferSize/1024, cmdUtil.WrapString("Maximum size of a single read from the connection in KB"))

	key = "max-frame-size"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Drop the connection if a frame grows beyond this size in KB (0 = unlimited)"))

	key = "read-timeout"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Drop the connection if the producer sends nothing for this many seconds (0 = never)"))

	key = "stats-interval"
	ServeCmd.PersistentFlags().Int(key, 1, cmdUtil.WrapString("Interval in seconds of the frames per second log line (0 = off)"))

	key = "record"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Record every delivered frame to this file (.zst and .lz4 are compressed)"))

	key = "monitor"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address of the monitor http endpoint (e.g. localhost:9977, empty = off)"))

	key = "status-json"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Print every status change as a JSON line to stdout"))

	cmdUtil.SetupProtocolFlags(ServeCmd)
	cmdUtil.SetupSocketFlags(ServeCmd)
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the pipeline configuration
func processConfig(_ *cobra.Command, _ []string) error {
	serveCmdConfig.Name = viper.GetString("name")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.ReadBufferSize = viper.GetInt("read-buffer") * 1024
	serveCmdConfig.MaxFrameSize = viper.GetInt("max-frame-size") * 1024
	serveCmdConfig.ReadTimeoutSecond = viper.GetInt("read-timeout")
	serveCmdConfig.StatsIntervalSecond = viper.GetInt("stats-interval")
	serveCmdConfig.SocketConf, serveCmdConfig.TCPConf = cmdUtil.GetSocketConf()

	var err error
	serveCmdConfig.Terminator, serveCmdConfig.StopByte, serveCmdConfig.Handshake, err = cmdUtil.GetProtocolBytes()
	if err != nil {
		return err
	}

	return serveCmdConfig.Validate()
}

// run starts the pipeline and blocks until it is interrupted or the sink fails
func run(_ *cobra.Command, _ []string) error {
	connector, err := cmdUtil.GetListenConnector()
	if err != nil {
		return err
	}

	fmt.Println(serveCmdConfig.String())

	// sinks
	params := sink.NewParameterStore()
	sinks := sink.MultiSink{
		params.Sink(viper.GetString("param")),
		&sink.LogSink{Name: serveCmdConfig.Name, Every: 100},
	}

	var recorder *sink.RecordSink
	if path := viper.GetString("record"); path != "" {
		recorder, err = sink.NewRecordSink(path)
		if err != nil {
			return err
		}
		defer recorder.Close()
		sinks = append(sinks, recorder)
	}

	var reporter pipeline.IStatusReporter
	if viper.GetBool("status-json") {
		reporter = jsonReporter()
	}

	p, err := pipeline.NewPipeline(serveCmdConfig, connector, sinks, reporter)
	if err != nil {
		return err
	}
	if err := p.Start(); err != nil {
		return err
	}
	defer p.Stop()

	if endpoint := viper.GetString("monitor"); endpoint != "" {
		mon := monitor.NewServer(monitor.Config{
			Endpoint:       endpoint,
			Debug:          viper.GetString("log-level") == "debug",
			ProcessMetrics: true,
		}, params, p)
		if err := mon.Start(); err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			mon.Shutdown(ctx)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if recorder != nil {
		go flushLoop(ctx, recorder)
	}

	select {
	case <-ctx.Done():
		p.Stop()
		return nil
	case <-p.Done():
		return p.Err()
	}
}

// flushLoop writes buffered records to disk once per second, so a recording stays
// usable if the process is killed
func flushLoop(ctx context.Context, recorder *sink.RecordSink) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := recorder.Flush(); err != nil {
				if !errors.Is(err, os.ErrClosed) {
					sink.Logger.Warningf("failed to flush recording: %v", err)
				}
				return
			}
		}
	}
}

// jsonReporter prints every status as one JSON line
func jsonReporter() pipeline.IStatusReporter {
	enc := json.NewEncoder(os.Stdout)
	return pipeline.ReporterFunc(func(status common.Status) {
		_ = enc.Encode(status)
	})
}
