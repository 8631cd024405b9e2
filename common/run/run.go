package run

import (
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"

	"github.com/commune-gg/commune/common"
	"github.com/commune-gg/commune/common/backgroundworkers"
	"github.com/commune-gg/commune/common/config"
	"github.com/commune-gg/commune/common/pubsub"
	"github.com/commune-gg/commune/common/sentryhook"
	"github.com/commune-gg/commune/web"
)

var (
	flagRunAPI        bool
	flagRunBWC        bool
	flagRunEverything bool

	flagDryRun bool

	flagLogTimestamp bool

	flagNodeID string

	flagVersion bool
)

var confSentryDSN = config.RegisterOption("commune.sentry_dsn", "Sentry credentials for sentry logging hook", nil)

func init() {
	flag.BoolVar(&flagRunAPI, "api", false, "Set to run the api server")
	flag.BoolVar(&flagRunBWC, "backgroundworkers", false, "Run the various background workers, atleast one process needs this")
	flag.BoolVar(&flagRunEverything, "all", false, "Set to run everything (api server and backgroundworkers)")
	flag.BoolVar(&flagDryRun, "dry", false, "Do a dryrun, initialize all plugins but don't actually start anything")

	flag.BoolVar(&flagLogTimestamp, "ts", false, "Set to include timestamps in log")

	flag.StringVar(&flagNodeID, "nodeid", "", "The id of this node, used when running multiple instances")
	flag.BoolVar(&flagVersion, "version", false, "Print the version and exit")
}

func Init() {
	if !flag.Parsed() {
		flag.Parse()
	}

	if flagVersion {
		fmt.Println(common.VERSION)
		os.Exit(0)
	}

	common.NodeID = flagNodeID

	stdlog.SetOutput(&common.STDLogProxy{})
	stdlog.SetFlags(0)

	common.AddLogHook(common.ContextHook{})

	common.SetLogFormatter(&log.TextFormatter{
		DisableTimestamp: !flagLogTimestamp && !common.Testing,
		ForceColors:      common.Testing,
		SortingFunc:      logrusSortingFunc,
	})

	if !flagRunAPI && !flagRunBWC && !flagRunEverything && !flagDryRun {
		log.Error("Didnt specify what to run, see -h for more info")
		os.Exit(1)
	}

	log.Info("Starting Commune version " + common.VERSION)

	err := common.CoreInit(true)
	if err != nil {
		log.WithError(err).Fatal("Failed running core init ")
	}

	if confSentryDSN.GetString() != "" {
		addSentryHook()
	}

	err = common.Init()
	if err != nil {
		log.WithError(err).Fatal("Failed intializing")
	}

	log.Info("Starting plugins")
}

var startedAt = time.Now()

func Run() {
	if flagDryRun {
		log.Println("This is a dry run, exiting")
		return
	}

	if flagRunAPI || flagRunEverything {
		// the api server handles events for all communities
		pubsub.FilterFunc = func(communityID int64) bool {
			return true
		}

		go web.Run()
	}

	if flagRunBWC || flagRunEverything {
		go backgroundworkers.RunWorkers()
	}

	go pubsub.PollEvents()

	common.SetShutdownFunc(shutdown)
	listenSignal()
}

func listenSignal() {
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	<-c
	common.Shutdown()
}

func shutdown() {
	log.Info("SHUTTING DOWN after running for ", common.HumanizeDuration(common.DurationPrecisionSeconds, time.Since(startedAt)))

	wg := new(sync.WaitGroup)

	if flagRunAPI || flagRunEverything {
		web.Stop()
		time.Sleep(time.Second)
	}

	if flagRunBWC || flagRunEverything {
		backgroundworkers.StopWorkers(wg)
	}

	log.Info("Waiting for things to shut down...")
	wg.Wait()

	log.Info("Sleeping for a second to allow work to finish")
	time.Sleep(time.Second)

	log.Info("Bye..")
	os.Exit(0)
}

func addSentryHook() {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:   confSentryDSN.GetString(),
		Debug: false,
	})

	if err == nil {
		sentry.ConfigureScope(func(s *sentry.Scope) {
			if flagNodeID != "" {
				s.SetTag("node_id", flagNodeID)
			}
		})

		hook := &sentryhook.Hook{}
		common.AddLogHook(hook)
		log.Info("Added Sentry Hook")
	} else {
		log.WithError(err).Error("Failed adding sentry hook")
	}
}

var logSortPriority = []string{
	"time",
	"level",
	"p",
	"msg",
	"stck",
}

func logrusSortingFunc(fields []string) {
	sort.Slice(fields, func(i, j int) bool {
		iPriority := findStringIndex(logSortPriority, fields[i])
		jPriority := findStringIndex(logSortPriority, fields[j])

		if iPriority != -1 && jPriority == -1 {
			return true
		} else if jPriority != -1 && iPriority == -1 {
			return false
		} else if iPriority == -1 && jPriority == -1 {
			return strings.Compare(fields[i], fields[j]) > 1
		}

		return iPriority < jPriority
	})
}

func findStringIndex(slice []string, s string) int {
	for i, v := range slice {
		if v == s {
			return i
		}
	}

	return -1
}
