// SPDX-License-Identifier: MIT

package http

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/nbd-wtf/go-nostr/nip11"

	"log"
)

type (
	NIP11Config struct {
		Name        string `yaml:"name" mapstructure:"name"`
		Description string `yaml:"description" mapstructure:"description"`
		PubKey      string `yaml:"pubkey" mapstructure:"pubkey"`
		Contact     string `yaml:"contact" mapstructure:"contact"`
	}
	nip11handler struct {
		cfg *NIP11Config
	}
)

func NewNIP11Handler(cfg *NIP11Config) http.Handler {
	return &nip11handler{cfg: cfg}
}

func (n *nip11handler) ServeHTTP(writer http.ResponseWriter, req *http.Request) {
	if req.Header.Get("Accept") != "application/nostr+json" {
		writer.WriteHeader(http.StatusBadRequest)

		return
	}
	writer.Header().Add("Content-Type", "application/json")
	info := n.info()
	bytes, err := json.Marshal(info)
	if err != nil {
		err = errors.Wrapf(err, "failed to serialize NIP11 json %+v", info)
		log.Printf("ERROR:%v", err)
	}
	writer.Write(bytes)
}

func (n *nip11handler) info() nip11.RelayInformationDocument {
	return nip11.RelayInformationDocument{
		Name:          n.cfg.Name,
		Description:   n.cfg.Description,
		PubKey:        n.cfg.PubKey,
		Contact:       n.cfg.Contact,
		SupportedNIPs: []int{1, 9, 11, 45, 98},
		Software:      "hearthside",
		Limitation: &nip11.RelayLimitationDocument{
			MaxLimit:         5000,
			MaxEventTags:     2000,
			MaxContentLength: 64 << 10,
			RestrictedWrites: true,
		},
	}
}
