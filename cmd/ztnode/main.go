package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"strconv"
	"time"

	"github.com/HondouKoSuke/ZeroTierOne/demarc"
	"github.com/HondouKoSuke/ZeroTierOne/intro"
	"github.com/HondouKoSuke/ZeroTierOne/node"
	"github.com/HondouKoSuke/ZeroTierOne/store"
	"github.com/HondouKoSuke/ZeroTierOne/types/key"
	"github.com/HondouKoSuke/ZeroTierOne/types/msgpath"
	"github.com/abiosoft/ishell/v2"
	"github.com/benbjohnson/clock"
	"go4.org/netipx"
)

var (
	programLevel = new(slog.LevelVar) // Info by default

	configPath = flag.String("c", "", "config file path")

	cfg Config

	dm      = demarc.New()
	tbl     = node.NewTable()
	tracker = node.NewPingTracker()

	maintCancel context.CancelFunc
)

func main() {
	flag.Parse()

	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: programLevel})
	slog.SetDefault(slog.New(h))
	programLevel.Set(slog.LevelInfo)

	cfg = loadConfig()

	go dm.Run(handleFrame)

	if cfg.BindAddr.Valid {
		if port, err := dm.Bind(cfg.BindAddr.Val); err != nil {
			slog.Error("startup bind failed", "addr", cfg.BindAddr.Val, "err", err)
		} else {
			slog.Info("bound", "port", uint64(port))
		}
	}

	shell := ishell.New()

	shell.SetHomeHistoryPath(".ztnode_history")

	shell.Println("ZT Node Interactive Shell")
	shell.Println("node key:", cfg.PrivateKey.Public().Marshal())

	shell.AddCmd(&ishell.Cmd{
		Name: "trace",
		Help: "set log level to trace",
		Func: func(c *ishell.Context) {
			programLevel.Set(-8)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "debug",
		Help: "set log level to debug",
		Func: func(c *ishell.Context) {
			programLevel.Set(slog.LevelDebug)
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "info",
		Help: "set log level to info",
		Func: func(c *ishell.Context) {
			programLevel.Set(slog.LevelInfo)
		},
	})

	shell.AddCmd(keyCmd())
	shell.AddCmd(bindCmd())
	shell.AddCmd(peerCmd())
	shell.AddCmd(pingCmd())
	shell.AddCmd(introduceCmd())
	shell.AddCmd(maintainCmd())
	shell.AddCmd(storeCmd())
	shell.AddCmd(endpointsCmd())

	shell.Run()

	if maintCancel != nil {
		maintCancel()
	}
	_ = dm.Close()
}

// Key commands
func keyCmd() *ishell.Cmd {
	c := &ishell.Cmd{
		Name: "key",
		Help: "node key reading and regenerating",
		Func: func(c *ishell.Context) {
			c.Println("key:", cfg.PrivateKey.Marshal())
			c.Println("pub:", cfg.PrivateKey.Public().Marshal())
		},
	}

	c.AddCmd(&ishell.Cmd{
		Name: "gen",
		Help: "generate a new key (in-memory only, peers must be re-added)",
		Func: func(c *ishell.Context) {
			cfg.PrivateKey = key.NewNode()

			c.Println("key generated:", cfg.PrivateKey.Public().Marshal())
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "set",
		Help: "set a key",
		Func: func(c *ishell.Context) {
			var line string
			if len(c.Args) == 0 {
				c.Println("enter the key, with 'privkey:' prefix")
				line = c.ReadLine()
			} else {
				line = c.Args[0]
			}

			if p, err := key.UnmarshalPrivate(line); err != nil {
				c.Err(err)
				return
			} else {
				cfg.PrivateKey = *p
			}
		},
	})

	return c
}

// Demarc commands
func bindCmd() *ishell.Cmd {
	c := &ishell.Cmd{
		Name: "bind",
		Help: "bind a local UDP socket: bind [ip:port]",
		Func: func(c *ishell.Context) {
			addr := netip.MustParseAddrPort("0.0.0.0:0")
			if len(c.Args) > 0 {
				var err error
				if addr, err = netip.ParseAddrPort(c.Args[0]); err != nil {
					c.Err(err)
					return
				}
			}

			port, err := dm.Bind(addr)
			if err != nil {
				c.Err(err)
				return
			}

			c.Println("bound port", uint64(port))
		},
	}

	c.AddCmd(&ishell.Cmd{
		Name: "status",
		Help: "show bound ports",
		Func: func(c *ishell.Context) {
			ports := dm.Ports()
			if len(ports) == 0 {
				c.Println("no sockets bound")
				return
			}
			for _, p := range ports {
				c.Println("port", uint64(p))
			}
		},
	})

	return c
}

// Peer commands
func peerCmd() *ishell.Cmd {
	c := &ishell.Cmd{
		Name: "peer",
		Help: "peer table management",
		Func: func(c *ishell.Context) {
			peers := tbl.All()
			if len(peers) == 0 {
				c.Println("no peers")
				return
			}

			now := time.Now()
			for _, p := range peers {
				c.Printf("%s latency=%dms version=%s active=%v\n  v4: %s\n  v6: %s\n",
					p.Identity().Debug(), p.Latency(), p.RemoteVersion(),
					p.HasActiveDirectPath(now),
					pathLine(p.IPv4Path(), now), pathLine(p.IPv6Path(), now))
			}
		},
	}

	c.AddCmd(&ishell.Cmd{
		Name: "add",
		Help: "add a peer: add <pubkey>",
		Func: func(c *ishell.Context) {
			pub, err := argPubkey(c, 0)
			if err != nil {
				c.Err(err)
				return
			}

			p, err := node.NewPeer(cfg.PrivateKey, *pub)
			if err != nil {
				c.Err(err)
				return
			}

			if err := tbl.Add(p); err != nil {
				c.Err(err)
				return
			}

			c.Println("added", pub.Debug())
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "pin",
		Help: "pin a fixed path address: pin <pubkey> <ip:port>",
		Func: func(c *ishell.Context) {
			p, err := argPeer(c, 0)
			if err != nil {
				c.Err(err)
				return
			}

			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("need an address"))
				return
			}
			ap, err := netip.ParseAddrPort(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}

			p.SetPathAddress(ap, true)
			c.Println("pinned", ap)
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "unpin",
		Help: "clear the fixed flag: unpin <pubkey> [4|6]",
		Func: func(c *ishell.Context) {
			p, err := argPeer(c, 0)
			if err != nil {
				c.Err(err)
				return
			}

			t := node.AddressNone
			if len(c.Args) > 1 {
				switch c.Args[1] {
				case "4":
					t = node.AddressIPv4
				case "6":
					t = node.AddressIPv6
				default:
					c.Err(fmt.Errorf("unknown family %q", c.Args[1]))
					return
				}
			}

			p.ClearFixedFlag(t)
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "forget",
		Help: "forget direct paths: forget <pubkey> [all]",
		Func: func(c *ishell.Context) {
			p, err := argPeer(c, 0)
			if err != nil {
				c.Err(err)
				return
			}

			fixedToo := len(c.Args) > 1 && c.Args[1] == "all"
			p.ForgetDirectPaths(fixedToo)
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "rm",
		Help: "remove a peer: rm <pubkey>",
		Func: func(c *ishell.Context) {
			pub, err := argPubkey(c, 0)
			if err != nil {
				c.Err(err)
				return
			}

			tbl.Remove(*pub)
		},
	})

	return c
}

func pingCmd() *ishell.Cmd {
	return &ishell.Cmd{
		Name: "ping",
		Help: "ping a peer over all its direct paths: ping <pubkey>",
		Func: func(c *ishell.Context) {
			p, err := argPeer(c, 0)
			if err != nil {
				c.Err(err)
				return
			}

			now := time.Now()
			ping := &msgpath.Ping{TxID: msgpath.NewTxID(), NodeKey: cfg.PrivateKey.Public()}

			if !p.SendPing(dm, ping.MarshalPathMessage(), now) {
				c.Println("no path accepted the ping")
				return
			}

			tracker.Register(ping.TxID, p, now)
			c.Printf("ping sent, tx=%x\n", ping.TxID)
		},
	}
}

func introduceCmd() *ishell.Cmd {
	return &ishell.Cmd{
		Name: "introduce",
		Help: "introduce two peers to each other: introduce <pubkeyA> <pubkeyB>",
		Func: func(c *ishell.Context) {
			a, err := argPeer(c, 0)
			if err != nil {
				c.Err(err)
				return
			}
			b, err := argPeer(c, 1)
			if err != nil {
				c.Err(err)
				return
			}

			if intro.NewService(dm).Introduce(a, b, time.Now()) {
				c.Println("rendezvous sent to both peers")
			} else {
				c.Println("introduction failed (no common ground, or sends failed)")
			}
		},
	}
}

func maintainCmd() *ishell.Cmd {
	c := &ishell.Cmd{
		Name: "maintain",
		Help: "path maintenance control",
		Func: func(c *ishell.Context) {
			if maintCancel != nil {
				c.Println("maintainer: running")
			} else {
				c.Println("maintainer: stopped")
			}
		},
	}

	c.AddCmd(&ishell.Cmd{
		Name: "start",
		Help: "start the background path maintainer",
		Func: func(c *ishell.Context) {
			if maintCancel != nil {
				c.Println("already running")
				return
			}

			m := node.NewMaintainer(clock.New(), tbl, dm, tracker, cfg.PrivateKey.Public())

			var ctx context.Context
			ctx, maintCancel = context.WithCancel(context.Background())
			go m.Run(ctx)

			c.Println("maintainer started")
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "stop",
		Help: "stop the background path maintainer",
		Func: func(c *ishell.Context) {
			if maintCancel == nil {
				c.Println("not running")
				return
			}

			maintCancel()
			maintCancel = nil
			c.Println("maintainer stopped")
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "tick",
		Help: "force one maintenance pass",
		Func: func(c *ishell.Context) {
			node.NewMaintainer(clock.New(), tbl, dm, tracker, cfg.PrivateKey.Public()).Tick()
		},
	})

	return c
}

// Store commands
func storeCmd() *ishell.Cmd {
	c := &ishell.Cmd{
		Name: "store",
		Help: "peer cache persistence: store save|load [path]",
	}

	c.AddCmd(&ishell.Cmd{
		Name: "save",
		Help: "save all peers: save [path]",
		Func: func(c *ishell.Context) {
			st, err := openStore(c)
			if err != nil {
				c.Err(err)
				return
			}
			defer st.Close()

			now := time.Now()
			for _, p := range tbl.All() {
				if err := st.SavePeer(p, now); err != nil {
					c.Err(err)
					return
				}
			}
			c.Println("saved", tbl.Len(), "peers")
		},
	})

	c.AddCmd(&ishell.Cmd{
		Name: "load",
		Help: "load peers into the table: load [path]",
		Func: func(c *ishell.Context) {
			st, err := openStore(c)
			if err != nil {
				c.Err(err)
				return
			}
			defer st.Close()

			loaded, skipped, err := st.LoadAll(tbl)
			if err != nil {
				c.Err(err)
				return
			}
			c.Println("loaded", loaded, "peers,", skipped, "skipped")
		},
	})

	return c
}

func openStore(c *ishell.Context) (*store.Store, error) {
	path := ""
	if len(c.Args) > 0 {
		path = c.Args[0]
	} else if cfg.StorePath.Valid {
		path = cfg.StorePath.Val
	} else {
		return nil, fmt.Errorf("no store path given, and none in config")
	}

	return store.Open(path)
}

func endpointsCmd() *ishell.Cmd {
	return &ishell.Cmd{
		Name: "endpoints",
		Help: "list local addresses worth advertising",
		Func: func(c *ishell.Context) {
			addrs, err := advertisableAddrs()
			if err != nil {
				c.Err(err)
				return
			}

			for _, a := range addrs {
				c.Println(a)
			}
		},
	}
}

// advertisableAddrs collects the local interface addresses a peer
// could plausibly reach us on: everything minus loopback and
// link-local.
func advertisableAddrs() ([]netip.Addr, error) {
	ifAddrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}

	var b netipx.IPSetBuilder
	for _, a := range ifAddrs {
		pfx, err := netip.ParsePrefix(a.String())
		if err != nil {
			continue
		}

		ip := pfx.Addr().Unmap()
		if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			continue
		}

		b.Add(ip)
	}

	set, err := b.IPSet()
	if err != nil {
		return nil, err
	}

	var addrs []netip.Addr
	for _, r := range set.Ranges() {
		for ip := r.From(); ip.Compare(r.To()) <= 0; ip = ip.Next() {
			addrs = append(addrs, ip)
		}
	}

	return addrs, nil
}

func pathLine(w node.WanPath, now time.Time) string {
	if !w.Defined() {
		return "<none>"
	}

	s := w.Addr.String()
	if w.Fixed {
		s += " fixed"
	}
	if w.IsActive(now) {
		s += " active"
	} else {
		s += " stale"
	}
	if !w.LastReceive.IsZero() {
		s += " lastReceive=" + strconv.FormatInt(int64(now.Sub(w.LastReceive)/time.Second), 10) + "s"
	}
	return s
}

func argPubkey(c *ishell.Context, i int) (*key.NodePublic, error) {
	if len(c.Args) <= i {
		return nil, fmt.Errorf("need a peer pubkey argument")
	}

	return key.UnmarshalPublic(c.Args[i])
}

func argPeer(c *ishell.Context, i int) (*node.Peer, error) {
	pub, err := argPubkey(c, i)
	if err != nil {
		return nil, err
	}

	p := tbl.Get(*pub)
	if p == nil {
		return nil, fmt.Errorf("unknown peer %s", pub.Debug())
	}

	return p, nil
}
