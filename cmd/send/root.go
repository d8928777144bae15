package send

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/dStream/cmd/util"
	"github.com/ValentinKolb/dStream/stream/client"
	"github.com/ValentinKolb/dStream/stream/common"
	"github.com/ValentinKolb/dStream/stream/sink"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	sendCmdConfig = common.DefaultClientConfig()
	SendCmd       = &cobra.Command{
		Use:     "send",
		Short:   "Stream frames to a pipeline",
		Long:    `Act as producer: connect to a pipeline and stream synthetic frames at a fixed rate, or replay a recording made with 'serve --record'. Interrupting the command sends the stop byte.`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	key := "endpoint"
	SendCmd.PersistentFlags().String(key, "localhost:19977", cmdUtil.WrapString("The address of the pipeline"))

	key = "timeout"
	SendCmd.PersistentFlags().Int(key, 5, cmdUtil.WrapString("Timeout in seconds for connecting, the handshake and each write"))

	key = "fps"
	SendCmd.PersistentFlags().Float64(key, 30, cmdUtil.WrapString("Frames per second (synthetic frames, or replay speed if --realtime is off)"))

	key = "count"
	SendCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Number of frames to send (0 = until interrupted or the recording ends)"))

	key = "size"
	SendCmd.PersistentFlags().Int(key, 1024, cmdUtil.WrapString("Size of synthetic frames in bytes"))

	key = "replay"
	SendCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Replay the frames of this recording instead of synthetic frames"))

	key = "realtime"
	SendCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Replay with the original timing of the recording"))

	cmdUtil.SetupProtocolFlags(SendCmd)
	cmdUtil.SetupSocketFlags(SendCmd)
}

// processConfig converts flags and environment variables to the client configuration
func processConfig(_ *cobra.Command, _ []string) error {
	sendCmdConfig.Endpoint = viper.GetString("endpoint")
	sendCmdConfig.TimeoutSecond = viper.GetInt("timeout")
	sendCmdConfig.SocketConf, sendCmdConfig.TCPConf = cmdUtil.GetSocketConf()

	var err error
	sendCmdConfig.Terminator, sendCmdConfig.StopByte, sendCmdConfig.Handshake, err = cmdUtil.GetProtocolBytes()
	if err != nil {
		return err
	}

	if viper.GetFloat64("fps") <= 0 {
		return fmt.Errorf("fps must be positive")
	}
	return nil
}

// run connects and streams until done or interrupted
func run(_ *cobra.Command, _ []string) error {
	connector, err := cmdUtil.GetDialConnector()
	if err != nil {
		return err
	}

	fmt.Println(sendCmdConfig.String())

	producer, err := client.Dial(sendCmdConfig, connector)
	if err != nil {
		return err
	}
	defer producer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if path := viper.GetString("replay"); path != "" {
		err = replay(ctx, producer, path)
	} else {
		err = synthetic(ctx, producer)
	}

	frames, bytes := producer.Sent()
	elapsed := time.Since(start)
	fmt.Printf("sent %d frames (%d bytes) in %s, %.1f fps\n",
		frames, bytes, elapsed.Round(time.Millisecond), float64(frames)/elapsed.Seconds())

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// synthetic sends frames of --size bytes at --fps
func synthetic(ctx context.Context, producer *client.Producer) error {
	count := viper.GetInt("count")
	payload := make([]byte, viper.GetInt("size"))

	ticker := time.NewTicker(interval())
	defer ticker.Stop()

	for i := 0; count == 0 || i < count; i++ {
		// frame number in the first bytes, the rest is a fill pattern
		n := copy(payload, fmt.Sprintf("%08d|", i))
		for j := n; j < len(payload); j++ {
			payload[j] = byte('0' + (i+j)%10)
		}

		if err := producer.Send(payload); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// replay sends the frames of a recording
func replay(ctx context.Context, producer *client.Producer, path string) error {
	rr, err := sink.OpenRecording(path)
	if err != nil {
		return err
	}
	defer rr.Close()

	count := viper.GetInt("count")
	realtime := viper.GetBool("realtime")
	var last time.Time

	for i := 0; count == 0 || i < count; i++ {
		rec, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		wait := interval()
		if realtime {
			wait = 0
			if !last.IsZero() {
				wait = rec.Time.Sub(last)
			}
			last = rec.Time
		}
		if wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		// recorded frames carry the terminator already, Send appends it again
		payload := rec.Payload
		if n := len(payload); n > 0 && payload[n-1] == sendCmdConfig.Terminator {
			payload = payload[:n-1]
		}
		if err := producer.Send(payload); err != nil {
			return err
		}
	}
	return nil
}

func interval() time.Duration {
	return time.Duration(float64(time.Second) / viper.GetFloat64("fps"))
}
