package main

import (
	"log"

	"github.com/neovim/go-client/nvim/plugin"

	"go-live-ide/internal/host"
)

// Runs as a Neovim remote plugin: plugin.Main owns the connection and
// dispatches requests to the registered handlers.
func main() {
	plugin.Main(func(p *plugin.Plugin) error {
		log.Println("[go-live-ide] registering handlers")
		return host.Register(p)
	})
}
