// Package workflow drives the shelf photo conversation of one agent at a time.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dastankg/orimi-merchen/internal/config"
	"github.com/dastankg/orimi-merchen/internal/logging"
	"github.com/dastankg/orimi-merchen/internal/models"
	"github.com/dastankg/orimi-merchen/internal/provenance"
	"github.com/dastankg/orimi-merchen/internal/storage"
	"github.com/dastankg/orimi-merchen/internal/utils"
	"go.uber.org/zap"
)

// Deps are the collaborators of the engine.
type Deps struct {
	Store       storage.SessionStore
	Directory   Directory
	Assignments Assignments
	Stores      StoreResolver
	Geofence    Geofence
	Media       MediaFetcher
	Verifier    PhotoVerifier
	Submitter   Submitter
	Catalog     *config.Catalog
	Location    *time.Location
	MaxPhotoAge time.Duration
	Logger      *zap.Logger
	Now         func() time.Time
}

// Engine is the submission state machine.
type Engine struct {
	Deps
	locks *keyedLocker
}

// NewEngine validates deps and returns an engine.
func NewEngine(d Deps) (*Engine, error) {
	switch {
	case d.Store == nil:
		return nil, errors.New("workflow: session store is required")
	case d.Directory == nil, d.Assignments == nil, d.Stores == nil, d.Geofence == nil:
		return nil, errors.New("workflow: backend lookups are required")
	case d.Media == nil, d.Verifier == nil, d.Submitter == nil:
		return nil, errors.New("workflow: photo pipeline is required")
	case d.Catalog == nil:
		return nil, errors.New("workflow: catalog is required")
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.MaxPhotoAge <= 0 {
		d.MaxPhotoAge = 5 * time.Minute
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Engine{Deps: d, locks: newKeyedLocker()}, nil
}

// Handle applies one inbound event to the sender's session and returns the replies.
// Events of one identity are processed one at a time.
func (e *Engine) Handle(ctx context.Context, ev Event) ([]Reply, error) {
	if !ev.Valid() {
		return nil, fmt.Errorf("workflow: invalid %q event", ev.Kind)
	}

	unlock := e.locks.Lock(ev.Identity)
	defer unlock()

	sess, err := e.Store.Get(ctx, ev.Identity)
	switch {
	case errors.Is(err, storage.ErrSessionNotFound):
		sess = models.NewSession(ev.Identity)
	case err != nil:
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !sess.State.Valid() || (sess.State != models.StateUnauthenticated && sess.AgentPhone == "") {
		e.Logger.Warn("resetting inconsistent session", logging.Identity(ev.Identity), zap.String("state", string(sess.State)))
		sess.Deauthorize()
	}

	from := sess.State
	replies := e.dispatch(ctx, sess, ev)
	sess.PendingPhoto = ""

	if err := e.Store.Put(ctx, sess); err != nil {
		return replies, fmt.Errorf("save session: %w", err)
	}
	e.Logger.Debug("transition",
		logging.Identity(ev.Identity),
		zap.String("event", string(ev.Kind)),
		zap.String("from", string(from)),
		zap.String("to", string(sess.State)))
	return replies, nil
}

func (e *Engine) dispatch(ctx context.Context, sess *models.Session, ev Event) []Reply {
	cmd := parseCommand(ev)

	switch {
	case cmd == cmdStart:
		sess.Deauthorize()
		return []Reply{contactPrompt(textWelcome)}
	case ev.Kind == EventContact:
		return e.onContact(ctx, sess, ev.Contact)
	case cmd == cmdHelp:
		return []Reply{plain(textHelp)}
	case cmd == cmdProfile:
		if sess.State == models.StateUnauthenticated {
			return []Reply{contactPrompt(textNotAuthorized)}
		}
		return []Reply{mainMenu(fmt.Sprintf(textProfile, sess.AgentPhone))}
	case cmd == cmdCancel:
		if sess.State == models.StateUnauthenticated {
			return []Reply{contactPrompt(textShareContact)}
		}
		if !sess.State.InFlow() {
			return []Reply{mainMenu(textUseMenu)}
		}
		sess.Reset()
		return []Reply{mainMenu(textCancelled)}
	}

	switch sess.State {
	case models.StateUnauthenticated:
		if cmd == cmdUpload {
			return []Reply{contactPrompt(textNeedAuth)}
		}
		return []Reply{contactPrompt(textShareContact)}
	case models.StateAuthenticated:
		if cmd == cmdUpload {
			return e.startSubmission(ctx, sess)
		}
		return []Reply{mainMenu(textUseMenu)}
	}

	if cmd == cmdBack {
		return e.onBack(ctx, sess)
	}

	switch sess.State {
	case models.StateAwaitingShopName:
		return e.onShopName(ctx, sess, ev)
	case models.StateAwaitingLocation:
		return e.onLocation(ctx, sess, ev)
	case models.StateAwaitingCategory:
		return e.onCategory(sess, ev)
	case models.StateAwaitingOrimiBrand:
		return e.onOrimiBrand(sess, ev)
	case models.StateAwaitingCompetitorBrand:
		return e.onCompetitorBrand(sess, ev)
	case models.StateAwaitingCompetitorCount:
		return e.onCompetitorCount(ctx, sess, ev)
	case models.StateAwaitingPhoto:
		return e.onPhoto(ctx, sess, ev)
	}
	return []Reply{mainMenu(textUseMenu)}
}

func (e *Engine) onContact(ctx context.Context, sess *models.Session, c *Contact) []Reply {
	if !utils.SamePhone(c.Phone, sess.Identity) {
		return []Reply{plain(textNotOwnContact)}
	}

	phone := utils.NormalizePhone(c.Phone)
	agent, err := e.Directory.FindAgent(ctx, phone)
	if err != nil {
		e.Logger.Error("directory lookup failed", logging.Identity(sess.Identity), zap.Error(err))
		return []Reply{plain(textAuthError)}
	}
	if agent == nil {
		sess.Deauthorize()
		return []Reply{plain(textAuthNotFound)}
	}

	sess.Reset()
	sess.AgentPhone = phone
	e.Logger.Info("agent authenticated", logging.Identity(sess.Identity), zap.Int64("agent", agent.ID))
	return []Reply{mainMenu(textAuthOK)}
}

func (e *Engine) startSubmission(ctx context.Context, sess *models.Session) []Reply {
	if _, replies, ok := e.guardAgent(ctx, sess); !ok {
		return replies
	}

	stores, err := e.Assignments.AssignedStores(ctx, sess.AgentPhone)
	if err != nil {
		e.Logger.Error("schedule lookup failed", logging.Identity(sess.Identity), zap.Error(err))
		return []Reply{mainMenu(textScheduleError)}
	}
	if len(stores) == 0 {
		day := weekdays[e.Now().In(e.Location).Weekday()]
		return []Reply{mainMenu(fmt.Sprintf(textNoStores, day))}
	}

	sess.ClearWorkflow()
	sess.State = models.StateAwaitingShopName
	return []Reply{storePrompt(textChooseStore, stores)}
}

func (e *Engine) onShopName(ctx context.Context, sess *models.Session, ev Event) []Reply {
	stores, err := e.Assignments.AssignedStores(ctx, sess.AgentPhone)
	if err != nil {
		e.Logger.Error("schedule lookup failed", logging.Identity(sess.Identity), zap.Error(err))
		sess.Reset()
		return []Reply{mainMenu(textScheduleError)}
	}

	names := storeNames(stores)
	if ev.Kind != EventText {
		return []Reply{storePrompt(textChooseStore, stores)}
	}
	name, ok := pick(ev.Text, names)
	if !ok {
		return []Reply{storePrompt(fmt.Sprintf(textUnknownStore, strings.TrimSpace(ev.Text)), stores)}
	}

	sess.ShopName = name
	sess.State = models.StateAwaitingLocation
	return []Reply{locationPrompt(fmt.Sprintf(textShopSaved, name))}
}

func (e *Engine) onLocation(ctx context.Context, sess *models.Session, ev Event) []Reply {
	if ev.Kind != EventLocation {
		return []Reply{locationPrompt(textSendLocation)}
	}

	loc := ev.Location
	ok, err := e.Geofence.CheckLocation(ctx, loc.Latitude, loc.Longitude, sess.ShopName)
	if err != nil {
		e.Logger.Error("geofence check failed", logging.Identity(sess.Identity), zap.String("store", sess.ShopName), zap.Error(err))
		shop := sess.ShopName
		sess.Reset()
		return []Reply{mainMenu(fmt.Sprintf(textGeofenceFailed, shop))}
	}
	if !ok {
		e.Logger.Info("location outside store geofence", logging.Identity(sess.Identity), zap.String("store", sess.ShopName))
		shop := sess.ShopName
		sess.Reset()
		return []Reply{mainMenu(fmt.Sprintf(textGeofenceFailed, shop))}
	}

	sess.SetLocation(loc.Latitude, loc.Longitude)
	sess.State = models.StateAwaitingCategory
	return []Reply{e.categoryPrompt(textChooseCategory)}
}

func (e *Engine) onCategory(sess *models.Session, ev Event) []Reply {
	name, ok := "", false
	if ev.Kind == EventText {
		name, ok = pick(ev.Text, e.Catalog.CategoryNames())
	}
	if !ok {
		return []Reply{e.categoryPrompt(textPickCategory)}
	}

	cat, _ := e.Catalog.Category(name)
	sess.Category = cat.Name
	sess.State = branchFor(cat)
	return []Reply{e.promptFor(sess)}
}

func (e *Engine) onOrimiBrand(sess *models.Session, ev Event) []Reply {
	brand, ok := "", false
	if ev.Kind == EventText {
		brand, ok = pick(ev.Text, e.Catalog.OrimiBrands())
	}
	if !ok {
		return []Reply{withBack(Reply{Text: textPickBrand, Options: e.Catalog.OrimiBrands()})}
	}

	sess.Brand = brand
	sess.State = models.StateAwaitingPhoto
	return []Reply{e.promptFor(sess)}
}

func (e *Engine) onCompetitorBrand(sess *models.Session, ev Event) []Reply {
	brand, ok := "", false
	if ev.Kind == EventText {
		brand, ok = pick(ev.Text, e.Catalog.CompetitorBrands())
	}
	if !ok {
		return []Reply{withBack(Reply{Text: textPickBrand, Options: e.Catalog.CompetitorBrands()})}
	}

	sess.Brand = brand
	sess.State = models.StateAwaitingCompetitorCount
	return []Reply{e.promptFor(sess)}
}

func (e *Engine) onCompetitorCount(ctx context.Context, sess *models.Session, ev Event) []Reply {
	count, ok := -1, false
	if ev.Kind == EventText {
		count, ok = parseCount(ev.Text)
	}
	if !ok {
		return []Reply{withBack(plain(textNotANumber))}
	}

	agent, replies, ok := e.guardAgent(ctx, sess)
	if !ok {
		return replies
	}
	store, replies, ok := e.resolveStore(ctx, sess)
	if !ok {
		return replies
	}

	sess.CompetitorCount = &count
	out := e.Submitter.Submit(ctx, agent.ID, store.ID, sess, "")
	sess.Reset()
	if !out.Success() {
		e.Logger.Error("count submission failed", logging.Identity(sess.Identity), zap.String("kind", string(out.Kind())), zap.Error(out.Err))
		return []Reply{mainMenu(textDataSaveFailed)}
	}
	return []Reply{mainMenu(textDataSaved)}
}

func (e *Engine) onPhoto(ctx context.Context, sess *models.Session, ev Event) []Reply {
	if ev.Kind != EventMedia {
		return []Reply{withBack(plain(textWaitingPhoto))}
	}
	media := ev.Media
	if provenance.Classify(media.Extension) == provenance.FormatUnsupported {
		e.Logger.Info("unsupported attachment", logging.Identity(sess.Identity), zap.String("content_type", media.ContentType))
		sess.Reset()
		return []Reply{mainMenu(textUnsupported)}
	}

	agent, replies, ok := e.guardAgent(ctx, sess)
	if !ok {
		return replies
	}
	store, replies, ok := e.resolveStore(ctx, sess)
	if !ok {
		return replies
	}

	replies = []Reply{plain(textUploading)}
	path, err := e.Media.Fetch(ctx, media.URL, media.Extension)
	if err != nil {
		e.Logger.Error("media download failed", logging.Identity(sess.Identity), zap.Error(err))
		sess.Reset()
		return append(replies, mainMenu(textDownloadFailed))
	}
	sess.PendingPhoto = path

	res := e.Verifier.Verify(ctx, path, media.Extension)
	defer func() {
		if err := utils.RemoveFiles(path, res.NormalizedPath); err != nil {
			e.Logger.Warn("failed to remove scratch files", zap.Error(err))
		}
	}()

	if !res.Accepted {
		e.Logger.Info("photo rejected",
			logging.Identity(sess.Identity),
			zap.String("reason", string(res.Reason)),
			zap.Error(res.Err))
		sess.Reset()
		return append(replies, mainMenu(e.rejectionText(res)))
	}

	out := e.Submitter.Submit(ctx, agent.ID, store.ID, sess, res.NormalizedPath)
	sess.Reset()
	if !out.Success() {
		e.Logger.Error("photo submission failed", logging.Identity(sess.Identity), zap.String("kind", string(out.Kind())), zap.Error(out.Err))
		return append(replies, mainMenu(textSaveFailed))
	}
	return append(replies, plain(textPhotoSaved), mainMenu(textMorePhotos))
}

func (e *Engine) onBack(ctx context.Context, sess *models.Session) []Reply {
	target, ok := previous(sess, e.Catalog)
	if !ok {
		return []Reply{mainMenu(textUseMenu)}
	}
	moveBack(sess, target)

	switch target {
	case models.StateAuthenticated:
		return []Reply{mainMenu(textBackToMenu)}
	case models.StateAwaitingShopName:
		stores, err := e.Assignments.AssignedStores(ctx, sess.AgentPhone)
		if err != nil || len(stores) == 0 {
			if err != nil {
				e.Logger.Error("schedule lookup failed", logging.Identity(sess.Identity), zap.Error(err))
			}
			sess.Reset()
			return []Reply{mainMenu(textScheduleError)}
		}
		return []Reply{storePrompt(textBackToShop, stores)}
	case models.StateAwaitingLocation:
		return []Reply{locationPrompt(textBackToLocation)}
	case models.StateAwaitingCategory:
		return []Reply{e.categoryPrompt(textBackToCategory)}
	case models.StateAwaitingOrimiBrand:
		return []Reply{withBack(Reply{Text: textBackToBrand, Options: e.Catalog.OrimiBrands()})}
	case models.StateAwaitingCompetitorBrand:
		return []Reply{withBack(Reply{Text: textBackToBrand, Options: e.Catalog.CompetitorBrands()})}
	}
	return []Reply{e.promptFor(sess)}
}

// guardAgent re-checks that the proven phone still has a directory record.
func (e *Engine) guardAgent(ctx context.Context, sess *models.Session) (*models.Agent, []Reply, bool) {
	agent, err := e.Directory.FindAgent(ctx, sess.AgentPhone)
	if err != nil {
		e.Logger.Error("directory lookup failed", logging.Identity(sess.Identity), zap.Error(err))
		sess.Reset()
		return nil, []Reply{mainMenu(textUnknownError)}, false
	}
	if agent == nil {
		e.Logger.Warn("agent no longer in directory", logging.Identity(sess.Identity))
		sess.Deauthorize()
		return nil, []Reply{contactPrompt(textAgentGone)}, false
	}
	return agent, nil, true
}

func (e *Engine) resolveStore(ctx context.Context, sess *models.Session) (*models.StoreRef, []Reply, bool) {
	store, err := e.Stores.ResolveStoreID(ctx, sess.ShopName)
	if err != nil {
		e.Logger.Error("store lookup failed", logging.Identity(sess.Identity), zap.String("store", sess.ShopName), zap.Error(err))
		sess.Reset()
		return nil, []Reply{mainMenu(textUnknownError)}, false
	}
	if store == nil {
		e.Logger.Warn("store not registered", logging.Identity(sess.Identity), zap.String("store", sess.ShopName))
		sess.Reset()
		return nil, []Reply{mainMenu(textStoreUnknown)}, false
	}
	return store, nil, true
}

func (e *Engine) rejectionText(res provenance.Result) string {
	switch res.Reason {
	case models.KindPhotoStale:
		if res.Age(e.Now()) < 0 {
			return textPhotoFuture
		}
		return fmt.Sprintf(textPhotoStale, int(e.MaxPhotoAge/time.Minute))
	case models.KindMetadataMissing:
		return textMetadataMissing
	case models.KindUnsupportedFormat:
		return textUnsupported
	case models.KindConversionFailed:
		return textConversion
	}
	return textUnknownError
}

// promptFor builds the prompt of the state the session just entered.
func (e *Engine) promptFor(sess *models.Session) Reply {
	switch sess.State {
	case models.StateAwaitingOrimiBrand:
		return withBack(Reply{Text: fmt.Sprintf(textChooseOrimi, sess.Category), Options: e.Catalog.OrimiBrands()})
	case models.StateAwaitingCompetitorBrand:
		return withBack(Reply{Text: fmt.Sprintf(textChooseRival, sess.Category), Options: e.Catalog.CompetitorBrands()})
	case models.StateAwaitingCompetitorCount:
		return withBack(plain(fmt.Sprintf(textEnterCount, sess.Brand)))
	case models.StateAwaitingPhoto:
		if sess.Brand != "" {
			return withBack(plain(fmt.Sprintf(textSendPhotoOrimi, sess.Brand)))
		}
		return withBack(plain(fmt.Sprintf(textSendPhotoRMP, sess.Category)))
	case models.StateAwaitingCategory:
		return e.categoryPrompt(textPickCategory)
	case models.StateAwaitingLocation:
		return locationPrompt(textSendLocation)
	}
	return mainMenu(textUseMenu)
}

func (e *Engine) categoryPrompt(text string) Reply {
	return withBack(Reply{Text: text, Options: e.Catalog.CategoryNames()})
}

func storePrompt(text string, stores []models.StoreRef) Reply {
	return withBack(Reply{Text: text, Options: storeNames(stores)})
}

func locationPrompt(text string) Reply {
	return withBack(Reply{Text: text, RequestLocation: true})
}

func withBack(r Reply) Reply {
	r.Buttons = append(r.Buttons, ButtonBack, ButtonCancel)
	return r
}

func storeNames(stores []models.StoreRef) []string {
	names := make([]string, 0, len(stores))
	for _, s := range stores {
		names = append(names, s.Name)
	}
	return names
}

// pick matches text against options by exact name, case-insensitively, or by 1-based number.
func pick(text string, options []string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	for _, opt := range options {
		if opt == text {
			return opt, true
		}
	}
	for _, opt := range options {
		if strings.EqualFold(opt, text) {
			return opt, true
		}
	}
	if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(options) {
		return options[n-1], true
	}
	return "", false
}

// parseCount accepts ASCII digits only.
func parseCount(text string) (int, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, false
	}
	return n, true
}
