// Command fcgi-auth is the OAuth2 login demo: the same
// gorilla/sessions cookie store and golang.org/x/oauth2 provider
// configs as cmd/app-auth, answering through a *fcgi.Listener instead
// of net/http/fcgi, via the cgiadapt bridge.
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/sessions"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/sylee/fcgi-responder/fcgi"
	"github.com/sylee/fcgi-responder/internal/cgiadapt"
)

var (
	googleOauthConfig   *oauth2.Config
	facebookOauthConfig *oauth2.Config
	githubOauthConfig   *oauth2.Config
	store               = sessions.NewCookieStore([]byte(os.Getenv("SESSION_KEY")))
)

const (
	sessionName    = "auth-session"
	oauthStateKey  = "oauth-state"
	userProfileKey = "user-profile"
)

func main() {
	listenAddr := flag.String("listenAddr", "127.0.0.1:9003", "address to bind the auth demo responder")
	flag.Parse()

	googleOauthConfig = &oauth2.Config{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		Scopes:       []string{"https://www.googleapis.com/auth/userinfo.email"},
		Endpoint:     google.Endpoint,
	}
	facebookOauthConfig = &oauth2.Config{
		ClientID:     os.Getenv("FACEBOOK_CLIENT_ID"),
		ClientSecret: os.Getenv("FACEBOOK_CLIENT_SECRET"),
		Scopes:       []string{"public_profile", "email"},
		Endpoint:     facebook.Endpoint,
	}
	githubOauthConfig = &oauth2.Config{
		ClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		ClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		Scopes:       []string{"read:user", "user:email"},
		Endpoint:     github.Endpoint,
	}

	l := fcgi.NewListener()
	if err := l.SetHandlers(nil, handleRequest); err != nil {
		log.Fatalf("SetHandlers: %v", err)
	}
	if err := l.Start(*listenAddr); err != nil {
		log.Fatalf("Start: %v", err)
	}
	log.Printf("fcgi-auth listening on %s", l.Addr())
	select {}
}

func handleRequest(req *fcgi.Request, resp *fcgi.Response) {
	httpReq, err := cgiadapt.NewRequest(req)
	if err != nil {
		resp.SetStatus(http.StatusInternalServerError)
		fmt.Fprintln(resp, err.Error())
		return
	}
	w := cgiadapt.NewResponseWriter(resp)
	handleHome(w, httpReq)
}

func handleHome(w http.ResponseWriter, r *http.Request) {
	loginProvider := r.URL.Query().Get("login")
	callbackProvider := r.URL.Query().Get("callback")
	isLogout := r.URL.Query().Get("logout")

	if loginProvider != "" {
		var config *oauth2.Config
		switch loginProvider {
		case "google":
			config = googleOauthConfig
		case "facebook":
			config = facebookOauthConfig
		case "github":
			config = githubOauthConfig
		default:
			http.Error(w, "Unknown login provider", http.StatusBadRequest)
			return
		}
		handleLogin(w, r, config, loginProvider)
		return
	}

	if callbackProvider != "" {
		var config *oauth2.Config
		var userInfoURL string
		switch callbackProvider {
		case "google":
			config = googleOauthConfig
			userInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
		case "facebook":
			config = facebookOauthConfig
			userInfoURL = "https://graph.facebook.com/me?fields=id,name,email"
		case "github":
			config = githubOauthConfig
			userInfoURL = "https://api.github.com/user"
		default:
			http.Error(w, "Unknown callback provider", http.StatusBadRequest)
			return
		}
		handleCallback(w, r, config, userInfoURL, callbackProvider)
		return
	}

	if isLogout == "true" {
		handleLogout(w, r)
		return
	}

	session, err := store.Get(r, sessionName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	profile := session.Values[userProfileKey]

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintln(w, "<html><head><title>OAuth2 Login</title></head><body>")
	if profile != nil {
		fmt.Fprintln(w, "<h1>User Profile</h1>")
		fmt.Fprintf(w, "<pre>%s</pre>", profile)
		fmt.Fprintf(w, `<p><a href="?logout=true">Logout</a></p>`)
	} else {
		fmt.Fprintln(w, "<h1>Login</h1>")
		fmt.Fprintf(w, `<p><a href="?login=google">Login with Google</a></p>`)
		fmt.Fprintf(w, `<p><a href="?login=facebook">Login with Facebook</a></p>`)
		fmt.Fprintf(w, `<p><a href="?login=github">Login with GitHub</a></p>`)
	}
	fmt.Fprintln(w, "</body></html>")
}

func handleLogin(w http.ResponseWriter, r *http.Request, config *oauth2.Config, provider string) {
	state := generateStateOauthCookie(w)

	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
	}

	conf := *config
	conf.RedirectURL = fmt.Sprintf("%s://%s%s?callback=%s", scheme, r.Host, r.URL.Path, provider)
	log.Printf("Redirecting to OAuth provider with redirect_uri: %s", conf.RedirectURL)

	url := conf.AuthCodeURL(state)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

func handleCallback(w http.ResponseWriter, r *http.Request, config *oauth2.Config, userInfoURL string, provider string) {
	session, err := store.Get(r, sessionName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	oauthState, err := r.Cookie(oauthStateKey)
	if err != nil || r.FormValue("state") != oauthState.Value {
		log.Println("invalid oauth state")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
	}

	conf := *config
	conf.RedirectURL = fmt.Sprintf("%s://%s%s?callback=%s", scheme, r.Host, r.URL.Path, provider)

	token, err := conf.Exchange(context.Background(), r.FormValue("code"))
	if err != nil {
		log.Printf("Code exchange failed: %s\n", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	client := conf.Client(context.Background(), token)
	response, err := client.Get(userInfoURL)
	if err != nil {
		log.Printf("Failed getting user info: %s\n", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}
	defer response.Body.Close()

	contents, err := io.ReadAll(response.Body)
	if err != nil {
		log.Printf("Failed reading user info response: %s\n", err.Error())
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}

	var prettyJSON map[string]interface{}
	if err := json.Unmarshal(contents, &prettyJSON); err != nil {
		log.Printf("Failed to unmarshal user info: %s\n", err.Error())
		session.Values[userProfileKey] = string(contents)
	} else {
		pretty, _ := json.MarshalIndent(prettyJSON, "", "  ")
		session.Values[userProfileKey] = string(pretty)
	}

	if err := session.Save(r, w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

func handleLogout(w http.ResponseWriter, r *http.Request) {
	session, err := store.Get(r, sessionName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	session.Values[userProfileKey] = nil
	session.Options.MaxAge = -1

	if err := session.Save(r, w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

func generateStateOauthCookie(w http.ResponseWriter) string {
	expiration := time.Now().Add(20 * time.Minute)
	b := make([]byte, 16)
	rand.Read(b)
	state := base64.URLEncoding.EncodeToString(b)
	cookie := http.Cookie{Name: oauthStateKey, Value: state, Expires: expiration}
	http.SetCookie(w, &cookie)
	return state
}
