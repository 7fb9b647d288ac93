package remoting

import (
	"html/template"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DebugPath   = "/debug/remoting"
	MetricsPath = "/metrics"
)

const debugText = `<html>
	<body>
	<title>Remoting Services</title>
	Phase {{.Phase}}, {{.Clients}} clients connected, {{.References}} references
	{{range .Services}}
	<hr>
	Contract {{.Name}}{{if .Reference}} (reference {{.Reference}}){{end}}
	<hr>
		<table>
		<th align=center>Method</th><th align=center>Returns</th><th align=center>Calls</th>
		{{range .Methods}}
			<tr>
			<td align=left font=fixed>{{.Identity}}</td>
			<td align=left font=fixed>{{.Returns}}</td>
			<td align=center>{{.NumCalls}}</td>
			</tr>
		{{end}}
		</table>
	{{end}}
	</body>
	</html>`

var debug = template.Must(template.New("remoting debug").Parse(debugText))

type DebugHTTP struct {
	server *Server
}

type DebugService struct {
	Name string
	// 根实现为 0
	Reference int64
	Methods   []*methodType
}

type debugPage struct {
	Phase      Phase
	Clients    int
	References int
	Services   []*DebugService
}

func (server DebugHTTP) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	d := server.server.dispatcher
	page := debugPage{
		Phase:      server.server.Phase(),
		Clients:    server.server.ClientCount(),
		References: d.objects.Len(),
	}
	page.Services = append(page.Services, &DebugService{Name: d.root.name, Methods: d.root.methods()})
	for _, obj := range d.objects.all() {
		page.Services = append(page.Services, &DebugService{
			Name:      obj.svc.name,
			Reference: obj.id,
			Methods:   obj.svc.methods(),
		})
	}
	err := debug.Execute(w, page)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// DebugHandler serves the debug page and the server metrics.
func (s *Server) DebugHandler() http.Handler {
	router := mux.NewRouter().StrictSlash(true)
	router.Handle(DebugPath, DebugHTTP{server: s}).Methods(http.MethodGet)
	router.Handle(MetricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return router
}
