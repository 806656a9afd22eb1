package sandbox

// harnessSource evaluates to a function (source, emit) that runs source as a
// function body with console.log/info/warn/error redirected to emit(level, line).
// It returns {ok, error}. The same text runs inside goja and under node.
const harnessSource = `(function (source, emit) {
  var root = (function () { return this; })();
  var levels = ["log", "info", "warn", "error"];

  function stringify(value) {
    try {
      return String(value);
    } catch (err) {
      return Object.prototype.toString.call(value);
    }
  }

  function serialise(value) {
    if (value === null || typeof value !== "object") {
      return stringify(value);
    }
    var ancestors = [];
    try {
      var text = JSON.stringify(value, function (key, current) {
        if (typeof current !== "object" || current === null) {
          return current;
        }
        while (ancestors.length > 0 && ancestors[ancestors.length - 1] !== this) {
          ancestors.pop();
        }
        if (ancestors.indexOf(current) !== -1) {
          return "[Circular]";
        }
        ancestors.push(current);
        return current;
      });
      return text === undefined ? stringify(value) : text;
    } catch (err) {
      return stringify(value);
    }
  }

  // Values without a message property report "" and get the generic text.
  function describe(err) {
    if (err !== null && typeof err === "object" && err.message !== undefined && err.message !== null) {
      return stringify(err.message);
    }
    return "";
  }

  function capture(level) {
    return function () {
      var parts = [];
      for (var i = 0; i < arguments.length; i++) {
        parts.push(serialise(arguments[i]));
      }
      emit(level, parts.join(" "));
    };
  }

  var created = !root.console;
  var target = created ? {} : root.console;
  var saved = {};
  if (created) {
    root.console = target;
  }
  for (var i = 0; i < levels.length; i++) {
    saved[levels[i]] = target[levels[i]];
    target[levels[i]] = capture(levels[i]);
  }

  try {
    var body = new Function(source);
    body();
    return { ok: true, error: "" };
  } catch (err) {
    return { ok: false, error: describe(err) };
  } finally {
    for (var j = 0; j < levels.length; j++) {
      target[levels[j]] = saved[levels[j]];
    }
    if (created) {
      delete root.console;
    }
  }
})`
