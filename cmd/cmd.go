package cmd

import (
	"fmt"
	"runtime"

	"github.com/urfave/cli"

	"github.com/warpdl/queuedl/cmd/common"
)

type BuildArgs struct {
	Version   string
	BuildType string
	Date      string
	Commit    string
}

var currentBuildArgs BuildArgs

func Execute(args []string, bArgs BuildArgs) error {
	currentBuildArgs = bArgs
	app := cli.App{
		Name:                  "queuedl",
		HelpName:              "queuedl",
		Usage:                 "A queued downloader for file references.",
		Version:               fmt.Sprintf("%s-%s", bArgs.Version, bArgs.BuildType),
		UsageText:             "queuedl [global options] <command> [arguments...]",
		Description:           DESCRIPTION,
		CustomAppHelpTemplate: HELP_TEMPL,
		OnUsageError:          common.UsageErrorCallback,
		Flags:                 globalFlags,
		Commands: []cli.Command{
			{
				Name:               "daemon",
				Usage:              "run the download queue",
				Description:        DaemonDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Action:             daemon,
			},
			{
				Name:               "stop",
				Usage:              "stop the running daemon",
				Description:        StopDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Action:             stop,
				Flags:              stopFlags,
			},
			{
				Name:                   "add",
				Aliases:                []string{"a"},
				Usage:                  "queue file references for download",
				ArgsUsage:              "<file-ref>...",
				Description:            AddDescription,
				CustomHelpTemplate:     CMD_HELP_TEMPL,
				OnUsageError:           common.UsageErrorCallback,
				Action:                 add,
				Flags:                  addFlags,
				UseShortOptionHandling: true,
			},
			{
				Name:               "list",
				Aliases:            []string{"l", "ls"},
				Usage:              "display the downloads",
				Description:        ListDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Action:             list,
				Flags:              lsFlags,
			},
			{
				Name:               "status",
				Aliases:            []string{"s"},
				Usage:              "show one download",
				ArgsUsage:          "<file-ref>",
				Description:        StatusDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Action:             status,
			},
			{
				Name:               "info",
				Aliases:            []string{"i"},
				Usage:              "shows remote info about a file reference",
				ArgsUsage:          "<file-ref>",
				Description:        InfoDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Action:             info,
			},
			{
				Name:   "pause",
				Usage:  "stop starting new downloads",
				Action: pause,
			},
			{
				Name:   "resume",
				Usage:  "start downloads again after pause",
				Action: resume,
			},
			{
				Name:               "cancel",
				Usage:              "cancel pending or running downloads",
				ArgsUsage:          "<file-ref>...",
				Description:        CancelDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Action:             cancel,
			},
			{
				Name:               "retry",
				Usage:              "queue failed or cancelled downloads again",
				ArgsUsage:          "<file-ref>...",
				Description:        RetryDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Action:             retry,
			},
			{
				Name:               "remove",
				Aliases:            []string{"rm"},
				Usage:              "delete downloads from the queue",
				ArgsUsage:          "<file-ref>...",
				Description:        RemoveDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Action:             remove,
			},
			{
				Name:               "clear",
				Aliases:            []string{"c"},
				Usage:              "delete completed and cancelled downloads",
				Description:        ClearDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             clearFinished,
			},
			{
				Name:               "watch",
				Aliases:            []string{"w"},
				Usage:              "follow live download progress",
				Description:        WatchDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Action:             watch,
				Flags:              watchFlags,
			},
			{
				Name:               "login",
				Usage:              "store a credential",
				ArgsUsage:          "<name>",
				Description:        LoginDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Action:             login,
				Flags:              loginFlags,
			},
			{
				Name:               "logout",
				Usage:              "delete a stored credential",
				ArgsUsage:          "<name>",
				Description:        LogoutDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             logout,
			},
			{
				Name:               "config",
				Usage:              "print the effective configuration",
				Description:        ConfigDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             showConfig,
			},
			{
				Name:    "help",
				Aliases: []string{"h"},
				Usage:   "prints the help message",
				Action:  common.Help,
			},
			{
				Name:               "version",
				Aliases:            []string{"v"},
				Usage:              "prints installed version of queuedl",
				UsageText:          " ",
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             common.GetVersion,
			},
		},
		Action:      common.Help,
		HideHelp:    true,
		HideVersion: true,
	}
	common.VersionCmdStr = fmt.Sprintf("%s %s (%s_%s)\nBuild: %s=%s\n",
		app.Name,
		app.Version,
		runtime.GOOS,
		runtime.GOARCH,
		bArgs.Date, bArgs.Commit,
	)
	return app.Run(args)
}
