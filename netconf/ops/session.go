package ops

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/yangwire/ncbackend/netconf/client"
)

// Namespace binds a prefix to a URN, for use in xpath filter expressions
// that reference more than the default namespace.
type Namespace struct {
	ID   string
	Path string
}

// OpSession is a client.Session enriched with the standard NETCONF
// operations, built as request/reply pairs on top of Execute instead of
// requiring every caller to hand-build request bodies.
type OpSession interface {
	client.Session

	// GetSubtree issues a get request with the supplied subtree filter
	// and decodes the response into result, which should be the address
	// of either a string (the raw reply body) or a struct with xml tags.
	GetSubtree(filter interface{}, result interface{}) error

	// GetXpath issues a get request with the supplied xpath filter and
	// namespace list.
	GetXpath(xpath string, nslist []Namespace, result interface{}) error

	// GetConfigSubtree issues a get-config request against source with
	// the supplied subtree filter.
	GetConfigSubtree(filter interface{}, source string, result interface{}) error

	// GetConfigXpath issues a get-config request against source with the
	// supplied xpath filter and namespace list.
	GetConfigXpath(xpath string, nslist []Namespace, source string, result interface{}) error

	// EditConfig issues an edit-config request applying config to target.
	// config is either an XML string used verbatim, or a struct with xml
	// tags that is marshalled first.
	EditConfig(target string, config interface{}, options ...EditOption) error

	// CopyConfig issues a copy-config request.
	CopyConfig(source, target CfgDsOpt) error

	// DeleteConfig issues a delete-config request.
	DeleteConfig(target CfgDsOpt) error

	// Validate issues a validate request against source.
	Validate(source string) error

	// Lock issues a lock request on the target configuration.
	Lock(target string) error

	// Unlock issues an unlock request on the target configuration.
	Unlock(target string) error

	// Commit issues an ordinary commit request.
	Commit() error

	// ConfirmedCommit issues a confirmed commit request, persisted under
	// persistID if non-empty, reverted automatically after timeout
	// unless confirmed or cancelled first.
	ConfirmedCommit(persistID string, timeoutSecs uint64) error

	// CancelCommit cancels a pending confirmed commit identified by
	// persistID.
	CancelCommit(persistID string) error

	// DiscardChanges issues a discard-changes request.
	DiscardChanges() error

	// CloseSession issues a close-session request.
	CloseSession() error

	// KillSession issues a kill-session request for the specified
	// session id.
	KillSession(id uint32) error
}

type sImpl struct {
	client.Session
}

func (s *sImpl) Close() { s.Session.Close() }

func (s *sImpl) GetSubtree(filter, result interface{}) error {
	return s.handleGetRequest(createGetSubtreeRequest(filter), result)
}

func (s *sImpl) GetXpath(xpath string, nslist []Namespace, result interface{}) error {
	return s.handleGetRequest(createGetXpathRequest(xpath, nslist), result)
}

func (s *sImpl) GetConfigSubtree(filter interface{}, source string, result interface{}) error {
	return s.handleGetRequest(createGetConfigSubtreeRequest(filter, source), result)
}

func (s *sImpl) GetConfigXpath(xpath string, nslist []Namespace, source string, result interface{}) error {
	return s.handleGetRequest(createGetConfigXpathRequest(xpath, source, nslist), result)
}

func (s *sImpl) EditConfig(target string, config interface{}, options ...EditOption) error {
	_, err := s.Session.Execute(createEditConfigRequest(target, config, options...))
	return err
}

func (s *sImpl) CopyConfig(source, target CfgDsOpt) error {
	_, err := s.Session.Execute(createCopyConfigRequest(source, target))
	return err
}

func (s *sImpl) DeleteConfig(target CfgDsOpt) error {
	_, err := s.Session.Execute(createDeleteConfigRequest(target))
	return err
}

func (s *sImpl) Validate(source string) error {
	_, err := s.Session.Execute(createValidateRequest(source))
	return err
}

func (s *sImpl) Lock(target string) error {
	_, err := s.Session.Execute(createLockRequest(target))
	return err
}

func (s *sImpl) Unlock(target string) error {
	_, err := s.Session.Execute(createUnlockRequest(target))
	return err
}

func (s *sImpl) Commit() error {
	_, err := s.Session.Execute(createCommitRequest())
	return err
}

func (s *sImpl) ConfirmedCommit(persistID string, timeoutSecs uint64) error {
	_, err := s.Session.Execute(createConfirmedCommitRequest(persistID, timeoutSecs))
	return err
}

func (s *sImpl) CancelCommit(persistID string) error {
	_, err := s.Session.Execute(createCancelCommitRequest(persistID))
	return err
}

func (s *sImpl) DiscardChanges() error {
	_, err := s.Session.Execute(createDiscardRequest())
	return err
}

func (s *sImpl) CloseSession() error {
	_, err := s.Session.Execute(createCloseSessionRequest())
	return err
}

func (s *sImpl) KillSession(id uint32) error {
	_, err := s.Session.Execute(createKillSessionRequest(id))
	return err
}

// Request structs. Filter and Config carry their inner content as raw,
// already-rendered XML rather than as a generic union, matching how
// internal/wire.RPCMessage carries its own body.

type Filter struct {
	XMLName xml.Name `xml:"filter"`
	Type    string   `xml:"type,attr"`
	Select  string   `xml:"select,attr,omitempty"`
	Body    string   `xml:",innerxml"`
}

type Config struct {
	XMLName xml.Name `xml:"config"`
	Body    string   `xml:",innerxml"`
}

type ConfigType struct {
	Type string `xml:",innerxml"`
	URL  string `xml:"url,omitempty"`
}

type GetReq struct {
	XMLName xml.Name `xml:"get"`
	Filter  *Filter
}

type GetConfigReq struct {
	XMLName    xml.Name    `xml:"get-config"`
	Source     *ConfigType `xml:"source"`
	Filter     *Filter
	FilterBody string `xml:",innerxml"`
}

type EditConfigReq struct {
	XMLName          xml.Name    `xml:"edit-config"`
	Target           *ConfigType `xml:"target"`
	ErrorOption      string      `xml:"error-option,omitempty"`
	TestOption       string      `xml:"test-option,omitempty"`
	DefaultOperation string      `xml:"default-operation,omitempty"`
	Config           *Config
}

type CopyConfigReq struct {
	XMLName xml.Name    `xml:"copy-config"`
	Target  *ConfigType `xml:"target"`
	Source  *ConfigType `xml:"source"`
}

type DeleteConfigReq struct {
	XMLName xml.Name    `xml:"delete-config"`
	Target  *ConfigType `xml:"target"`
}

type ValidateReq struct {
	XMLName xml.Name    `xml:"validate"`
	Source  *ConfigType `xml:"source"`
}

type LockReq struct {
	XMLName xml.Name    `xml:"lock"`
	Target  *ConfigType `xml:"target"`
}

type UnlockReq struct {
	XMLName xml.Name    `xml:"unlock"`
	Target  *ConfigType `xml:"target"`
}

type CommitReq struct {
	XMLName       xml.Name `xml:"commit"`
	Confirmed     *struct{} `xml:"confirmed,omitempty"`
	ConfirmTimeout uint64   `xml:"confirm-timeout,omitempty"`
	Persist       string   `xml:"persist,omitempty"`
}

type CancelCommitReq struct {
	XMLName   xml.Name `xml:"cancel-commit"`
	PersistID string   `xml:"persist-id,omitempty"`
}

type DiscardReq struct {
	XMLName xml.Name `xml:"discard-changes"`
}

type CloseSessionReq struct {
	XMLName xml.Name `xml:"close-session"`
}

type KillSessionReq struct {
	XMLName xml.Name `xml:"kill-session"`
	ID      uint32   `xml:"session-id"`
}

// CfgDsOpt configures a ConfigType as naming a datastore.
type CfgDsOpt func(*ConfigType)

func DsName(name string) CfgDsOpt {
	return func(t *ConfigType) { t.Type = "<" + name + "/>" }
}

func DsURL(url string) CfgDsOpt {
	return func(t *ConfigType) { t.URL = url }
}

// EditOption configures an edit-config request.
type EditOption func(*EditConfigReq)

func DefaultOperation(oper string) EditOption {
	return func(req *EditConfigReq) { req.DefaultOperation = oper }
}

func TestOption(opt string) EditOption {
	return func(req *EditConfigReq) { req.TestOption = opt }
}

func ErrorOption(opt string) EditOption {
	return func(req *EditConfigReq) { req.ErrorOption = opt }
}

func createGetSubtreeRequest(s interface{}) client.Request {
	req := &GetReq{}
	if s != nil {
		req.Filter = &Filter{Type: "subtree", Body: bodyOf(s)}
	}
	return req
}

func createGetXpathRequest(xpath string, nslist []Namespace) client.Request {
	return fmt.Sprintf(`<get><filter %s type="xpath" select=%q/></get>`, namespaceAttrs(nslist), xpath)
}

func createGetConfigSubtreeRequest(s interface{}, source string) client.Request {
	req := &GetConfigReq{Source: &ConfigType{Type: "<" + source + "/>"}}
	if s != nil {
		req.Filter = &Filter{Type: "subtree", Body: bodyOf(s)}
	}
	return req
}

func createGetConfigXpathRequest(xpath, source string, nslist []Namespace) client.Request {
	req := &GetConfigReq{Source: &ConfigType{Type: "<" + source + "/>"}}
	if xpath != "" {
		req.FilterBody = fmt.Sprintf(`<filter %s type="xpath" select=%q/>`, namespaceAttrs(nslist), xpath)
	}
	return req
}

func createEditConfigRequest(target string, config interface{}, options ...EditOption) *EditConfigReq {
	req := &EditConfigReq{Target: &ConfigType{Type: "<" + target + "/>"}, Config: &Config{Body: bodyOf(config)}}
	for _, opt := range options {
		opt(req)
	}
	return req
}

func createCopyConfigRequest(source, target CfgDsOpt) *CopyConfigReq {
	req := &CopyConfigReq{Source: &ConfigType{}, Target: &ConfigType{}}
	source(req.Source)
	target(req.Target)
	return req
}

func createDeleteConfigRequest(target CfgDsOpt) *DeleteConfigReq {
	req := &DeleteConfigReq{Target: &ConfigType{}}
	target(req.Target)
	return req
}

func createValidateRequest(source string) *ValidateReq {
	return &ValidateReq{Source: &ConfigType{Type: "<" + source + "/>"}}
}

func createLockRequest(target string) *LockReq {
	return &LockReq{Target: &ConfigType{Type: "<" + target + "/>"}}
}

func createUnlockRequest(target string) *UnlockReq {
	return &UnlockReq{Target: &ConfigType{Type: "<" + target + "/>"}}
}

func createCommitRequest() *CommitReq {
	return &CommitReq{}
}

func createConfirmedCommitRequest(persistID string, timeoutSecs uint64) *CommitReq {
	return &CommitReq{Confirmed: &struct{}{}, ConfirmTimeout: timeoutSecs, Persist: persistID}
}

func createCancelCommitRequest(persistID string) *CancelCommitReq {
	return &CancelCommitReq{PersistID: persistID}
}

func createDiscardRequest() *DiscardReq {
	return &DiscardReq{}
}

func createKillSessionRequest(id uint32) *KillSessionReq {
	return &KillSessionReq{ID: id}
}

func createCloseSessionRequest() *CloseSessionReq {
	return &CloseSessionReq{}
}

func namespaceAttrs(nslist []Namespace) string {
	var attrs string
	for _, ns := range nslist {
		attrs = fmt.Sprintf(`%s xmlns:%s=%q`, attrs, ns.ID, ns.Path)
	}
	return strings.TrimSpace(attrs)
}

// bodyOf renders s as raw XML: s is used verbatim if it is already a
// string, otherwise it is XML-marshalled.
func bodyOf(s interface{}) string {
	if str, ok := s.(string); ok {
		return str
	}
	b, err := xml.Marshal(s)
	if err != nil {
		return ""
	}
	return string(b)
}

// handleGetRequest executes req and decodes the reply body, which carries
// the matched element(s) directly (no outer <data> wrapper), into result:
// the raw string if result is a *string, or the element's fields if it is
// a struct pointer with xml tags.
func (s *sImpl) handleGetRequest(req client.Request, result interface{}) error {
	reply, err := s.Session.Execute(req)
	if err != nil {
		return err
	}

	if target, ok := result.(*string); ok {
		*target = reply.Data
		return nil
	}
	return xml.Unmarshal([]byte(reply.Data), result)
}
