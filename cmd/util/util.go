package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dStream/stream/common"
	"github.com/ValentinKolb/dStream/stream/transport"
	"github.com/ValentinKolb/dStream/stream/transport/tcp"
	"github.com/ValentinKolb/dStream/stream/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		if lineWidth > 0 && lineWidth+1+len(word) > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}
		currentLine.WriteString(word)
		lineWidth += len(word)
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files, binds DSTREAM_* environment variables and reads
// the config file given by --config, if any
func InitConfig() error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("dstream")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if path := viper.GetString("config"); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	return nil
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Shared flags
// --------------------------------------------------------------------------

// SetupProtocolFlags adds the wire protocol flags to a command
func SetupProtocolFlags(cmd *cobra.Command) {
	key := "terminator"
	cmd.PersistentFlags().String(key, string(common.DefaultTerminator), WrapString("Byte that ends a frame when it is the last byte of a received chunk"))

	key = "stop-byte"
	cmd.PersistentFlags().String(key, string(common.DefaultStopByte), WrapString("Byte the producer sends to stop the stream (older capture apps use 'e')"))

	key = "handshake"
	cmd.PersistentFlags().String(key, string(common.DefaultHandshake), WrapString("Byte sent to the producer after the connection was accepted"))
}

// SetupSocketFlags adds the socket tuning flags to a command
func SetupSocketFlags(cmd *cobra.Command) {
	key := "socket-read-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("Kernel receive buffer of the connection in KB (0 = system default)"))

	key = "socket-write-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("Kernel send buffer of the connection in KB (0 = system default)"))

	key = "tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval in seconds (only for tcp, 0 = off)"))

	key = "tcp-linger"
	cmd.PersistentFlags().Int(key, -1, WrapString("The linger time in seconds (only for tcp, -1 = system default)"))
}

// GetSocketConf reads the socket flags from viper
func GetSocketConf() (common.SocketConf, common.TCPConf) {
	return common.SocketConf{
			ReadBufferSize:  viper.GetInt("socket-read-buffer") * 1024,
			WriteBufferSize: viper.GetInt("socket-write-buffer") * 1024,
		}, common.TCPConf{
			TCPNoDelay:      viper.GetBool("tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("tcp-linger"),
		}
}

// GetProtocolBytes reads terminator, stop byte and handshake from viper
func GetProtocolBytes() (terminator, stop, handshake byte, err error) {
	if terminator, err = GetByte("terminator"); err != nil {
		return
	}
	if stop, err = GetByte("stop-byte"); err != nil {
		return
	}
	handshake, err = GetByte("handshake")
	return
}

// GetByte reads a single byte flag from viper
func GetByte(key string) (byte, error) {
	value := viper.GetString(key)
	if len(value) != 1 {
		return 0, fmt.Errorf("%s must be a single byte, got %q", key, value)
	}
	return value[0], nil
}

// --------------------------------------------------------------------------
// Transport
// --------------------------------------------------------------------------

// GetListenConnector creates the listen connector selected by --transport
func GetListenConnector() (transport.IListenConnector, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewListenConnector(), nil
	case "unix":
		return unix.NewListenConnector(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetDialConnector creates the dial connector selected by --transport
func GetDialConnector() (transport.IDialConnector, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewDialConnector(), nil
	case "unix":
		return unix.NewDialConnector(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}
