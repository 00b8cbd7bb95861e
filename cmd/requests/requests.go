// SPDX-License-Identifier: ice License 1.0

package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gookit/goutil/errorx"
	"github.com/spf13/cobra"

	"github.com/opencollective/requests-sub001/cfg"
	"github.com/opencollective/requests-sub001/model"
	"github.com/opencollective/requests-sub001/projection"
	"github.com/opencollective/requests-sub001/queue"
	"github.com/opencollective/requests-sub001/relay"
	"github.com/opencollective/requests-sub001/session"
	"github.com/opencollective/requests-sub001/signer"
)

type config struct {
	Relays         []string
	Store          string
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
}

type app struct {
	conf *config
	pool *relay.Pool
	sess *session.Session
	out  *queue.Queue
}

var (
	configPath string
	nsec       string
	bunkerURL  string
	pairEmail  string
	pairExtra  string
	community  string
	requestID  string
	title      string
	content    string
	label      string

	root = &cobra.Command{
		Use:   "requests",
		Short: "community requests client",
	}
)

func newApp(ctx context.Context) (*app, error) {
	cfg.MustInit(configPath)
	conf := cfg.MustGet[config]()
	if len(conf.Relays) == 0 {
		return nil, errorx.Raw("no relays configured")
	}
	pool := relay.New(conf.ConnectTimeout)
	store, err := session.OpenStore(conf.Store)
	if err != nil {
		return nil, err
	}
	a := &app{conf: conf, pool: pool}
	a.out = queue.New(func(ctx context.Context, ev *model.Event) error {
		if err := a.sess.Sign(ctx, ev); err != nil {
			return err
		}
		_, pubErr := pool.Publish(ctx, conf.Relays, ev)

		return pubErr
	})
	a.sess = session.New(store, pool, func() { a.out.Drain(ctx) })
	if err = a.sess.Resume(ctx); err != nil {
		return nil, err
	}

	return a, nil
}

func (a *app) communityInfo(ctx context.Context, reference string) (*model.CommunityInfo, error) {
	ref, err := model.ParseCommunityRef(reference)
	if err != nil {
		return nil, err
	}
	events, err := a.pool.QuerySync(ctx, a.conf.Relays, ref.Filter())
	if err != nil {
		return nil, err
	}
	infos := projection.LatestDefinitions(events)
	if len(infos) == 0 {
		return nil, errorx.Rawf("community %v not found on %v", reference, a.conf.Relays)
	}

	return infos[0], nil
}

func (a *app) requestViews(ctx context.Context, info *model.CommunityInfo) ([]projection.RequestView, error) {
	requestEvents, err := a.pool.QuerySync(ctx, a.conf.Relays, model.RequestFilter(info.Ref(), 0))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(requestEvents))
	for _, ev := range requestEvents {
		ids = append(ids, ev.GetID())
	}
	var statusEvents []*model.Event
	if len(ids) > 0 {
		if statusEvents, err = a.pool.QuerySync(ctx, a.conf.Relays, model.StatusFilter(ids, 0)); err != nil {
			return nil, err
		}
	}

	return projection.ProjectRequests(requestEvents, statusEvents, info.Moderators, false), nil
}

// submit enqueues unconditionally: the queue drains right away when a
// signer is available and waits for login otherwise. Draining without a
// signer would consume the item's single attempt, so it stays pending
// until the session can sign.
func (a *app) submit(ctx context.Context, ev *model.Event) {
	id := a.out.Enqueue(ev)
	fmt.Printf("queued %v\n", id)
	if _, err := a.sess.Signer(); err == nil {
		a.out.Drain(ctx)
	}
	for _, item := range a.out.Items() {
		if item.ID == id && item.Status == queue.StatusFailed {
			fmt.Printf("failed: %v\n", item.Error)
		} else if item.ID == id {
			fmt.Printf("%v (will be sent after login)\n", item.Status)
		}
	}
	for _, item := range a.out.Processed() {
		if item.ID == id {
			fmt.Printf("published %v\n", item.Event.GetID())
		}
	}
}

func run(fn func(ctx context.Context, a *app) error) func(*cobra.Command, []string) {
	return func(*cobra.Command, []string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		a, err := newApp(ctx)
		if err != nil {
			log.Panic(err)
		}
		defer a.pool.Close()
		if err = fn(ctx, a); err != nil {
			log.Panic(err)
		}
	}
}

func initCommands() {
	root.PersistentFlags().StringVar(&configPath, "config", "application.yaml", "path to the yaml configuration")

	login := &cobra.Command{
		Use:   "login",
		Short: "authenticate with a local key (--nsec) or a remote signer (--bunker)",
		Run: run(func(ctx context.Context, a *app) error {
			switch {
			case nsec != "":
				return a.sess.LoginLocal(ctx, nsec)
			case bunkerURL != "":
				token, err := signer.ParseToken(bunkerURL)
				if err != nil {
					return err
				}
				if pairExtra != "" || pairEmail != "" {
					token.AppendSecret(pairExtra, pairEmail)
				}

				return a.sess.LoginRemote(ctx, token.String())
			}

			return errorx.Raw("either --nsec or --bunker is required")
		}),
	}
	login.Flags().StringVar(&nsec, "nsec", "", "local secret key (hex or nsec)")
	login.Flags().StringVar(&bunkerURL, "bunker", "", "remote signer connection token (bunker://...)")
	login.Flags().StringVar(&pairExtra, "pairing-secret", "", "out-of-band pairing secret")
	login.Flags().StringVar(&pairEmail, "email", "", "initiating email for the pairing secret")

	logout := &cobra.Command{
		Use:   "logout",
		Short: "clear credentials and cancel any remote session",
		Run: run(func(ctx context.Context, a *app) error {
			return a.sess.Logout(ctx)
		}),
	}

	communities := &cobra.Command{
		Use:   "communities",
		Short: "list community definitions visible on the configured relays",
		Run: run(func(ctx context.Context, a *app) error {
			events, err := a.pool.QuerySync(ctx, a.conf.Relays, model.CommunityDefinitionFilter(nil, 0))
			if err != nil {
				return err
			}
			for _, info := range projection.LatestDefinitions(events) {
				fmt.Printf("%v\t%v\t%v moderator(s)\n", info.Ref(), info.Name, len(info.Moderators))
			}

			return nil
		}),
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "list a community's requests with their effective status",
		Run: run(func(ctx context.Context, a *app) error {
			info, err := a.communityInfo(ctx, community)
			if err != nil {
				return err
			}
			views, err := a.requestViews(ctx, info)
			if err != nil {
				return err
			}
			for _, view := range views {
				fmt.Printf("%v\t[%v]\t%v\t%v\n", view.DTag, view.Status, view.Title, view.ID)
			}

			return nil
		}),
	}

	thread := &cobra.Command{
		Use:   "thread",
		Short: "show the reply thread of a request",
		Run: run(func(ctx context.Context, a *app) error {
			events, err := a.pool.QuerySync(ctx, a.conf.Relays, model.ThreadFilter(requestID, 0))
			if err != nil {
				return err
			}
			authors := make([]string, 0, len(events))
			for _, ev := range events {
				authors = append(authors, ev.PubKey)
			}
			var profiles map[string]projection.Profile
			if len(authors) > 0 {
				profileEvents, pErr := a.pool.QuerySync(ctx, a.conf.Relays, model.ProfileFilter(authors, 0))
				if pErr != nil {
					return pErr
				}
				profiles = projection.ProjectProfiles(profileEvents)
			}
			for _, reply := range projection.ProjectThread(requestID, events) {
				author := reply.Author
				if profile, ok := profiles[reply.Author]; ok && profile.Name != "" {
					author = profile.Name
				}
				fmt.Printf("%v\t%v: %v\n", time.Unix(int64(reply.CreatedAt), 0).Format(time.DateTime), author, reply.Content)
			}

			return nil
		}),
	}

	submit := &cobra.Command{
		Use:   "submit",
		Short: "submit a new request to a community",
		Run: run(func(ctx context.Context, a *app) error {
			info, err := a.communityInfo(ctx, community)
			if err != nil {
				return err
			}
			var seq int64
			if a.sess.State() == session.StateAuthenticated {
				views, vErr := a.requestViews(ctx, info)
				if vErr != nil {
					return vErr
				}
				requests := make([]model.Request, 0, len(views))
				for _, view := range views {
					requests = append(requests, view.Request)
				}
				seq = model.NextSequence(requests)
			}
			ev, err := model.BuildCommunityRequest(&model.RequestForm{Title: title, Content: content}, info.PubKey, info.Identifier, "", seq)
			if err != nil {
				return err
			}
			a.submit(ctx, ev)

			return nil
		}),
	}

	setStatus := &cobra.Command{
		Use:   "set-status",
		Short: "set a request's status (moderators only)",
		Run: run(func(ctx context.Context, a *app) error {
			info, err := a.communityInfo(ctx, community)
			if err != nil {
				return err
			}
			ev, err := model.BuildStatus(requestID, info.Ref(), "", model.Status(label))
			if err != nil {
				return err
			}
			a.submit(ctx, ev)

			return nil
		}),
	}

	reply := &cobra.Command{
		Use:   "reply",
		Short: "reply in a request's thread",
		Run: run(func(ctx context.Context, a *app) error {
			info, err := a.communityInfo(ctx, community)
			if err != nil {
				return err
			}
			ev, err := model.BuildReply(requestID, info.Ref(), "", content)
			if err != nil {
				return err
			}
			a.submit(ctx, ev)

			return nil
		}),
	}

	retract := &cobra.Command{
		Use:   "retract",
		Short: "ask relays to delete one of your requests",
		Run: run(func(ctx context.Context, a *app) error {
			ev, err := model.BuildDeletion([]string{requestID}, model.KindCommunityRequest)
			if err != nil {
				return err
			}
			a.submit(ctx, ev)

			return nil
		}),
	}

	watch := &cobra.Command{
		Use:   "watch",
		Short: "stream a community's requests as they arrive",
		Run: run(func(ctx context.Context, a *app) error {
			ref, err := model.ParseCommunityRef(community)
			if err != nil {
				return err
			}
			cfg.OnChange(func() { log.Printf("relay list changed, restart to apply") })
			seen := relay.NewDeduper()
			stop, err := a.pool.Subscribe(ctx, a.conf.Relays, model.RequestFilter(*ref, 0), func(ev *model.Event) {
				if seen.Seen(ev.GetID()) || !model.IsValidCommunityRequest(ev) {
					return
				}
				if request, pErr := model.ParseCommunityRequest(ev); pErr == nil {
					fmt.Printf("%v\t%v\t%v\n", request.DTag, request.Title, request.ID)
				}
			}, func() { log.Printf("caught up with stored events") })
			if err != nil {
				return err
			}
			defer stop()
			<-ctx.Done()

			return nil
		}),
	}

	for _, withCommunity := range []*cobra.Command{list, submit, setStatus, reply, watch} {
		withCommunity.Flags().StringVar(&community, "community", "", "community reference (34550:<pubkey>:<identifier>)")
	}
	for _, withRequest := range []*cobra.Command{thread, setStatus, reply, retract} {
		withRequest.Flags().StringVar(&requestID, "request", "", "request event id")
		withRequest.MarkFlagRequired("request")
	}
	submit.Flags().StringVar(&title, "title", "", "request title")
	submit.Flags().StringVar(&content, "content", "", "request content")
	submit.MarkFlagRequired("content")
	reply.Flags().StringVar(&content, "content", "", "reply content")
	reply.MarkFlagRequired("content")
	setStatus.Flags().StringVar(&label, "status", "", "status label (New, in-progress, accepted, rejected, ...)")
	setStatus.MarkFlagRequired("status")
	for _, cmd := range []*cobra.Command{list, submit, setStatus, reply, watch} {
		cmd.MarkFlagRequired("community")
	}

	root.AddCommand(login, logout, communities, list, thread, submit, setStatus, reply, retract, watch)
}

func init() {
	initCommands()
}

func main() {
	if err := root.Execute(); err != nil {
		log.Panic(err)
	}
}
