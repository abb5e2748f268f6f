// Copyright 2025 Alibaba Group Holding Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package connection models the addressing handed to a launched kernel
// process and the tagged union describing how a kernel was (or will be)
// reached.
package connection

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
)

// SignatureScheme is fixed; the wire protocol never negotiates it.
const SignatureScheme = "hmac-sha256"

// Transport is the socket family a File addresses.
type Transport string

const (
	TransportTCP Transport = "tcp"
	TransportIPC Transport = "ipc"
)

// File is the connection file written to disk and handed to a kernel
// process via "-f {connection_file}".
type File struct {
	ShellPort       int       `json:"shell_port"`
	IOPubPort       int       `json:"iopub_port"`
	StdinPort       int       `json:"stdin_port"`
	ControlPort     int       `json:"control_port"`
	HBPort          int       `json:"hb_port"`
	IP              string    `json:"ip"`
	Key             string    `json:"key"`
	SignatureScheme string    `json:"signature_scheme"`
	Transport       Transport `json:"transport"`
	KernelName      string    `json:"kernel_name,omitempty"`
}

// NewFile allocates five free TCP ports on 127.0.0.1 and a 256-bit random
// HMAC key, producing a ready-to-serialize connection File.
func NewFile(kernelName string) (*File, error) {
	ports, err := fivefreeTCPPorts()
	if err != nil {
		return nil, fmt.Errorf("allocate connection ports: %w", err)
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate connection key: %w", err)
	}

	return &File{
		ShellPort:       ports[0],
		IOPubPort:       ports[1],
		StdinPort:       ports[2],
		ControlPort:     ports[3],
		HBPort:          ports[4],
		IP:              "127.0.0.1",
		Key:             hex.EncodeToString(key),
		SignatureScheme: SignatureScheme,
		Transport:       TransportTCP,
		KernelName:      kernelName,
	}, nil
}

// Marshal renders the connection file as the UTF-8 JSON document a kernel
// process reads at startup.
func (f *File) Marshal() ([]byte, error) {
	return json.MarshalIndent(f, "", "  ")
}

func fivefreeTCPPorts() ([5]int, error) {
	var ports [5]int
	var listeners []*net.TCPListener
	defer func() {
		for _, l := range listeners {
			_ = l.Close()
		}
	}()

	for i := range ports {
		l, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
		if err != nil {
			return ports, err
		}
		listeners = append(listeners, l)
		ports[i] = l.Addr().(*net.TCPAddr).Port
	}
	return ports, nil
}
